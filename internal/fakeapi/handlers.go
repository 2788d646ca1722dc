package fakeapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func failure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// validToken must be called with s.mu held.
func (s *Server) validToken(token string) bool {
	return token != "" && s.tokens[token]
}

// authorized guards GET endpoints, which carry the token only in the
// Authorization header.
func (s *Server) authorized(h func(c *gin.Context, token string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		s.mu.Lock()
		ok := s.validToken(token)
		s.mu.Unlock()
		if !ok {
			failure(c, http.StatusUnauthorized, "session expired")
			return
		}
		h(c, token)
	}
}

func (s *Server) listTickets(c *gin.Context, token string) {
	s.mu.Lock()
	tickets := s.tickets.list(token)
	s.mu.Unlock()
	c.JSON(http.StatusOK, tickets)
}

func listHandler[T core.Record](s *Server, t *table[T]) func(*gin.Context, string) {
	return func(c *gin.Context, token string) {
		s.mu.Lock()
		records := t.list(token)
		s.mu.Unlock()
		c.JSON(http.StatusOK, records)
	}
}

type tokenRequest struct {
	Token string `json:"token"`
	ID    int64  `json:"id"`
}

// bodyToken prefers the token in the JSON body and falls back to the header.
func bodyToken(c *gin.Context) (tokenRequest, bool) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Token == "" {
		req.Token = bearer(c)
	}
	return req, true
}

func (s *Server) deleteHandler(remove func(token string, id int64) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bodyToken(c)
		if !ok {
			return
		}

		s.mu.Lock()
		if !s.validToken(req.Token) {
			s.mu.Unlock()
			failure(c, http.StatusUnauthorized, "session expired")
			return
		}
		removed := remove(req.Token, req.ID)
		s.mu.Unlock()

		if !removed {
			failure(c, http.StatusNotFound, "not found")
			return
		}
		s.logger.Info("Record deleted", log.FieldRecordID, req.ID, "path", c.FullPath())
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) statsHandler(compute func(token string) core.Stats) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bodyToken(c)
		if !ok {
			return
		}

		s.mu.Lock()
		if !s.validToken(req.Token) {
			s.mu.Unlock()
			failure(c, http.StatusUnauthorized, "session expired")
			return
		}
		stats := compute(req.Token)
		s.mu.Unlock()

		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	}
}

func (s *Server) uploadTicket(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		token = bearer(c)
	}
	s.mu.Lock()
	ok := s.validToken(token)
	s.mu.Unlock()
	if !ok {
		failure(c, http.StatusUnauthorized, "session expired")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		failure(c, http.StatusBadRequest, "no file uploaded")
		return
	}
	file, err := header.Open()
	if err != nil {
		failure(c, http.StatusBadRequest, "error reading file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, core.MaxUploadSize+1))
	if err != nil {
		failure(c, http.StatusBadRequest, "error reading file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(content).String()
	}
	upload := core.Upload{Name: header.Filename, Type: contentType, Size: header.Size}
	if err := upload.Validate(); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}

	now := s.clock.Now().UTC()
	extraction, text := extract(header.Filename, content, now)
	ticket := core.Ticket{
		Merchant:  extraction.Merchant,
		Amount:    extraction.Total,
		Date:      extraction.Date,
		Category:  extraction.Category,
		Text:      text,
		CreatedAt: core.Date{Time: now},
	}
	if err := ticket.Validate(); err != nil {
		failure(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	ticket.ID = s.allocID()
	s.tickets.byToken[token] = append(s.tickets.byToken[token], ticket)
	s.mu.Unlock()

	s.logger.Info("Ticket imported", log.FieldRecordID, ticket.ID, log.FieldFileName, header.Filename,
		log.FieldFileType, contentType, log.FieldFileSize, header.Size)
	c.JSON(http.StatusOK, core.ImportResult{
		Success:       true,
		Message:       "ticket imported",
		ExtractedData: &extraction,
		Text:          text,
	})
}
