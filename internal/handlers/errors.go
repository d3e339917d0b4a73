package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/dermscan/internal/decision"
	"github.com/example/dermscan/internal/repository"
)

func mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction not found"})
	case errors.Is(err, repository.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, decision.ErrInvalidInput):
		// Classifier output that does not fit the catalog is a deployment
		// problem, not something the caller can fix.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classifier is misconfigured"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
