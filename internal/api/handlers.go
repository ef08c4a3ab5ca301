package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/auth"
	"github.com/clearity-app/clearity/internal/pipeline"
	"github.com/clearity-app/clearity/internal/reasoning"
	"github.com/clearity-app/clearity/internal/store"
)

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return problem(c, fiber.StatusBadRequest, "invalid body")
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return problem(c, fiber.StatusBadRequest, "valid email required")
	}
	if len(req.Password) < 8 {
		return problem(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(c.UserContext(), req.Email); err == nil {
		return problem(c, fiber.StatusConflict, "email already registered")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return s.respondError(c, err)
	}

	salt, err := auth.NewSalt()
	if err != nil {
		return s.respondError(c, err)
	}
	user := &store.User{
		Email:        req.Email,
		Salt:         salt,
		PasswordHash: auth.HashPassword(req.Password, salt),
	}
	if err := s.store.CreateUser(c.UserContext(), user); err != nil {
		return s.respondError(c, err)
	}
	return s.issueToken(c, user.ID, fiber.StatusCreated)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return problem(c, fiber.StatusBadRequest, "invalid body")
	}
	user, err := s.store.GetUserByEmail(c.UserContext(), strings.TrimSpace(strings.ToLower(req.Email)))
	if errors.Is(err, apperrors.ErrNotFound) {
		return problem(c, fiber.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return s.respondError(c, err)
	}
	if !auth.VerifyPassword(req.Password, user.Salt, user.PasswordHash) {
		return problem(c, fiber.StatusUnauthorized, "invalid credentials")
	}
	return s.issueToken(c, user.ID, fiber.StatusOK)
}

// handleAnonymous creates a throwaway account and returns its token, so the
// app works without registration.
func (s *Server) handleAnonymous(c *fiber.Ctx) error {
	user := &store.User{IsAnonymous: true}
	if err := s.store.CreateUser(c.UserContext(), user); err != nil {
		return s.respondError(c, err)
	}
	return s.issueToken(c, user.ID, fiber.StatusCreated)
}

func (s *Server) issueToken(c *fiber.Ctx, userID string, status int) error {
	if s.issuer == nil {
		return c.Status(status).JSON(tokenResponse{UserID: userID})
	}
	token, err := s.issuer.Issue(userID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(status).JSON(tokenResponse{Token: token, UserID: userID})
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	user, err := s.store.GetUser(c.UserContext(), s.userID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(UserView{
		ID:          user.ID,
		Email:       user.Email,
		IsAnonymous: user.IsAnonymous,
		CreatedAt:   user.CreatedAt,
	})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return problem(c, fiber.StatusBadRequest, "invalid body")
	}
	result, err := s.orch.HandleTurn(c.UserContext(), pipeline.TurnRequest{
		UserID:    s.userID(c),
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.store.ListSessionsByUser(c.UserContext(), s.userID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionView{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	return c.JSON(out)
}

// ownedSession loads a session and enforces ownership. Foreign sessions look
// like missing ones.
func (s *Server) ownedSession(c *fiber.Ctx) (*store.Session, error) {
	sess, err := s.store.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if sess.UserID != s.userID(c) {
		return nil, apperrors.ErrNotFound
	}
	return sess, nil
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(SessionView{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	})
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if _, err := s.ownedSession(c); err != nil {
		return s.respondError(c, err)
	}
	if err := s.store.DeleteSession(c.UserContext(), c.Params("id")); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.respondError(c, err)
	}
	limit := c.QueryInt("limit", 50)
	messages, err := s.store.RecentMessages(c.UserContext(), sess.ID, limit)
	if err != nil {
		return s.respondError(c, err)
	}
	out := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return c.JSON(out)
}

func (s *Server) handleGetMindmap(c *fiber.Ctx) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.respondError(c, err)
	}
	graph, err := s.store.GetGraphBySession(c.UserContext(), sess.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(graph)
}

func (s *Server) handleGetAnalysis(c *fiber.Ctx) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.respondError(c, err)
	}
	analysis, err := s.store.LatestAnalysis(c.UserContext(), sess.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(analysis)
}

func (s *Server) handleListTasks(c *fiber.Ctx) error {
	sess, err := s.ownedSession(c)
	if err != nil {
		return s.respondError(c, err)
	}
	tasks, err := s.store.ListTasks(c.UserContext(), sess.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return c.JSON(tasks)
}

func (s *Server) handleUpdateTask(c *fiber.Ctx) error {
	var req taskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return problem(c, fiber.StatusBadRequest, "invalid body")
	}
	status := reasoning.TaskStatus(req.Status)
	switch status {
	case reasoning.TaskPending, reasoning.TaskInProgress, reasoning.TaskCompleted:
	default:
		return problem(c, fiber.StatusBadRequest, "status must be pending, in_progress or completed")
	}

	taskID := c.Params("id")
	owner, err := s.store.TaskOwner(c.UserContext(), taskID)
	if err != nil {
		return s.respondError(c, err)
	}
	if owner != s.userID(c) {
		return s.respondError(c, apperrors.ErrNotFound)
	}
	if err := s.store.UpdateTaskStatus(c.UserContext(), taskID, status); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"id": taskID, "status": status})
}

func (s *Server) handleListSnapshots(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	snaps, err := s.store.ListSnapshotsByUser(c.UserContext(), s.userID(c), limit)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(snaps)
}
