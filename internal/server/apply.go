package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teed-waitlist/internal/common/auth"
	"teed-waitlist/internal/common/errors"
	"teed-waitlist/internal/scoring"
	"teed-waitlist/internal/waitlist"
)

type applyRequest struct {
	Email      string          `json:"email"`
	InviteCode string          `json:"inviteCode"`
	Answers    scoring.Answers `json:"answers"`
}

// apply accepts anonymous applications. A valid bearer token links the
// application to the member, and counts the email as verified when it matches.
func (s *Server) apply(c *gin.Context) {
	if s.deps.Waitlist == nil {
		abortWithError(c, errors.NewNotFoundError("endpoint", c.FullPath()))
		return
	}

	var body applyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	req := waitlist.ApplyRequest{
		Email:      body.Email,
		InviteCode: body.InviteCode,
		Answers:    body.Answers,
	}
	if id := s.optionalIdentity(c); id != nil {
		req.UserID = id.UserID
		req.EmailVerified = id.Email != "" && strings.EqualFold(strings.TrimSpace(id.Email), strings.TrimSpace(body.Email))
	}

	res, err := s.deps.Waitlist.Apply(c.Request.Context(), req)
	if err != nil {
		stdErr := errors.Normalize(err)
		if errors.HTTPStatus(stdErr.Code) >= http.StatusInternalServerError {
			s.logger.Error("waitlist application failed", map[string]interface{}{"error": stdErr.Error()})
		}
		abortWithError(c, stdErr)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (s *Server) optionalIdentity(c *gin.Context) *auth.Identity {
	if s.deps.Identity == nil {
		return nil
	}
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil
	}
	id, err := s.deps.Identity.Verify(c.Request.Context(), token)
	if err != nil {
		s.logger.Debug("ignoring unverifiable applicant token", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return id
}
