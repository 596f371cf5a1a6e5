package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BlobsController serves loaned blobs.
type BlobsController struct {
	loans Loans
}

func NewBlobsController(loans Loans) *BlobsController {
	return &BlobsController{loans: loans}
}

// Get handles GET /blobs/:token
func (bc *BlobsController) Get(c *gin.Context) {
	loan, ok := bc.loans.Get(c.Param("token"))
	if !ok {
		respondNotFound(c, "blob")
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, loan.MediaType, loan.Data())
}

// Revoke handles DELETE /blobs/:token
func (bc *BlobsController) Revoke(c *gin.Context) {
	if !bc.loans.Revoke(c.Param("token")) {
		respondNotFound(c, "blob")
		return
	}
	c.Status(http.StatusNoContent)
}
