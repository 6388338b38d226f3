// Package deeplink recognises the app's custom URL scheme.
package deeplink

import (
	"errors"
	"net/url"
	"strings"
)

type Action string

const ActionStart Action = "start"

var ErrUnknownLink = errors.New("unknown deep link")

var schemes = map[string]bool{
	"walktracker": true,
	"walking":     true,
}

// Parse accepts walktracker://start, walking://start and the path form
// walktracker:///start.
func Parse(raw string) (Action, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Join(ErrUnknownLink, err)
	}
	if !schemes[strings.ToLower(u.Scheme)] {
		return "", ErrUnknownLink
	}

	target := u.Host
	if target == "" {
		target = strings.Trim(u.Path, "/")
	}
	if target == "" {
		target = u.Opaque
	}
	switch strings.ToLower(target) {
	case string(ActionStart):
		return ActionStart, nil
	default:
		return "", ErrUnknownLink
	}
}
