package handler

import (
	"io"
	"net/http"

	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxDocumentBytes bounds uploaded certificate documents.
const maxDocumentBytes = 10 << 20

// CertificateHandler serves submission and lookup of death certificates.
type CertificateHandler struct {
	submissions *service.SubmissionService
	lookup      *service.LookupService
	logger      *zap.Logger
}

// NewCertificateHandler creates a CertificateHandler.
func NewCertificateHandler(submissions *service.SubmissionService, lookup *service.LookupService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{submissions: submissions, lookup: lookup, logger: logger}
}

// Register mounts the certificate routes on rg.
func (h *CertificateHandler) Register(rg *gin.RouterGroup) {
	certs := rg.Group("/certificates")
	{
		certs.POST("", h.Submit)
		certs.POST("/documents", h.SubmitDocument)
		certs.GET("/:ic", h.Lookup)
	}
}

// Submit handles POST /certificates: pins the death record and queues it
// for approval.
func (h *CertificateHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be a JSON death record")
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), &req.Record, req.SubmitterAddress)
	if err != nil {
		respondError(c, h.logger, "submit certificate", err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// SubmitDocument handles POST /certificates/documents with a multipart
// form carrying ic, file and an optional submitter_address.
func (h *CertificateHandler) SubmitDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "a document file is required")
		return
	}
	if fh.Size > maxDocumentBytes {
		badRequest(c, "document exceeds the 10 MiB limit")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "could not read the uploaded document")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes+1))
	if err != nil {
		badRequest(c, "could not read the uploaded document")
		return
	}

	sub, err := h.submissions.SubmitDocument(c.Request.Context(),
		c.PostForm("ic"), fh.Filename, data, c.PostForm("submitter_address"))
	if err != nil {
		respondError(c, h.logger, "submit document", err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// Lookup handles GET /certificates/:ic.
func (h *CertificateHandler) Lookup(c *gin.Context) {
	cert, err := h.lookup.Lookup(c.Request.Context(), c.Param("ic"))
	if err != nil {
		respondError(c, h.logger, "lookup certificate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificate": cert})
}
