package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"teamhub-api/domain"
)

// Session owns the live state for one user on one open board: the in-memory
// tree, the capability set resolved once at open, the gesture coordinator
// and the commit worker. The model is mutated only by the coordinator and by
// reconciliation; everything else reads through Tree.
type Session struct {
	boardID string
	userID  string
	role    domain.Role
	caps    domain.Capabilities

	gw      Gateway
	model   *domain.Model
	commits *Committer
	drag    *Coordinator
	logger  *log.Logger
}

// Open fetches the caller's role and the full board snapshot, then builds
// the engine around them. A missing or unknown role still opens the session
// read-only; every mutating surface stays denied.
func Open(ctx context.Context, gw Gateway, boardID, userID string, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	role, err := gw.FetchUserRole(ctx, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch role: %w", err)
	}
	caps := domain.CapabilitiesFor(role)

	snapshot, err := gw.FetchBoardWithData(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("fetch board: %w", err)
	}

	model := domain.NewModel(snapshot)
	commits := NewCommitter(gw, model, userID, logger)
	s := &Session{
		boardID: boardID,
		userID:  userID,
		role:    role,
		caps:    caps,
		gw:      gw,
		model:   model,
		commits: commits,
		drag:    NewCoordinator(model, caps, commits, logger),
		logger:  logger,
	}
	return s, nil
}

// Tree returns a read-only deep copy of the current board for rendering.
func (s *Session) Tree() domain.Board { return s.model.Tree() }

// Role returns the role resolved when the session opened.
func (s *Session) Role() domain.Role { return s.role }

// Capabilities returns the capability set derived from the session role.
func (s *Session) Capabilities() domain.Capabilities { return s.caps }

// Drag exposes the gesture state machine to the UI collaborator.
func (s *Session) Drag() *Coordinator { return s.drag }

// Refresh discards local state and reloads the board from the store. Used
// by the reconciliation caller and by explicit user refresh.
func (s *Session) Refresh(ctx context.Context) error {
	snapshot, err := s.gw.FetchBoardWithData(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("refresh board %s: %w", s.boardID, err)
	}
	s.model.Replace(snapshot)
	return nil
}

// Drain blocks until all submitted commits have resolved.
func (s *Session) Drain() { s.commits.Drain() }

// Close shuts the commit worker down after pending writes resolve.
func (s *Session) Close() { s.commits.Close() }
