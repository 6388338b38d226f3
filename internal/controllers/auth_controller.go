package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type TokenIssuer interface {
	GenerateToken(deviceID string) (string, error)
}

// AuthController exchanges the shared device key for a bearer token.
type AuthController struct {
	issuer  TokenIssuer
	keyHash []byte
}

// NewAuthController takes the bcrypt hash of the device key. An empty hash
// disables token issuance.
func NewAuthController(issuer TokenIssuer, keyHash string) *AuthController {
	return &AuthController{issuer: issuer, keyHash: []byte(keyHash)}
}

func (a *AuthController) IssueToken(c *gin.Context) {
	if len(a.keyHash) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuance is disabled"})
		return
	}

	var body struct {
		DeviceID  string `json:"device_id" binding:"required"`
		DeviceKey string `json:"device_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := bcrypt.CompareHashAndPassword(a.keyHash, []byte(body.DeviceKey)); err != nil {
		logrus.WithField("device_id", body.DeviceID).Warn("Rejected token request with a bad device key.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid device credentials"})
		return
	}

	token, err := a.issuer.GenerateToken(body.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}
	logrus.WithField("device_id", body.DeviceID).Info("Issued device token.")
	c.JSON(http.StatusCreated, gin.H{"token": token})
}
