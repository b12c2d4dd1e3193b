package permission

import (
	"context"
	"fmt"

	"github.com/ts4z/tote/gossip"
	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/pool"
	"github.com/ts4z/tote/state"
)

type UserStorage struct {
	next     state.UserStorage
	gossiper *gossip.Gossiper
}

var _ state.UserStorage = &UserStorage{}

func NewUserStorage(nx state.UserStorage, g *gossip.Gossiper) *UserStorage {
	return &UserStorage{
		next:     nx,
		gossiper: g,
	}
}

func (s *UserStorage) Close() {
	s.next.Close()
}

func (s *UserStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	return requireUserAdminReturning(ctx, func() ([]*model.UserIdentity, error) {
		return s.next.FetchUsers(ctx)
	})
}

func (s *UserStorage) CreateUser(ctx context.Context, nick, passwordHash string, isAdmin, isOperator bool) error {
	return requireUserAdmin(ctx, func() error {
		return s.next.CreateUser(ctx, nick, passwordHash, isAdmin, isOperator)
	})
}

// TODO this should use a non-user context, as this is the hook that is used
// for validating cookies.
func (s *UserStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	return s.next.FetchUserByUserID(ctx, id)
}

// TODO this requires a non-user context, as this is the hook that enables
// user login.
func (s *UserStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	return s.next.FetchUserRow(ctx, nick)
}

func (s *UserStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	return requireUserAdmin(ctx, func() error {
		if ui := UserFromContext(ctx); ui != nil && ui.Nick == nick {
			return fmt.Errorf("cannot delete own account: %w", pool.ErrBadRequest)
		}
		return s.next.DeleteUserByNick(ctx, nick)
	})
}

func (s *UserStorage) SetOperator(ctx context.Context, nick string, isOperator bool) error {
	return requireUserAdmin(ctx, func() error {
		if err := s.next.SetOperator(ctx, nick, isOperator); err != nil {
			return err
		}
		if s.gossiper != nil {
			s.gossiper.Publish(gossip.Event{Type: gossip.RoleChanged, Recipient: nick})
		}
		return nil
	})
}
