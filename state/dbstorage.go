package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ts4z/tote/dbutil"
	"github.com/ts4z/tote/ledger"
	"github.com/ts4z/tote/model"
)

// DBStorage is the Postgres implementation.  Rounds and site config are
// stored as JSON blobs with an optimistic-lock column (the blob's own lock
// field is ignored; the column is the truth).  Stakes get real rows, because
// staker lists are unbounded and settlement pages through them by index.
type DBStorage struct {
	db *sql.DB
}

var _ Storage = (*DBStorage)(nil)

func NewDBStorage(ctx context.Context, db *sql.DB) (*DBStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("can't ping database: %w", err)
	}
	return &DBStorage{db: db}, nil
}

func (s *DBStorage) Close() {
	s.db.Close()
}

func marshalRound(r *model.Round) ([]byte, error) {
	cpy := r.Clone()
	cpy.OptimisticLock = 0 // the column owns this
	return json.Marshal(cpy)
}

func (s *DBStorage) notifyRound(ctx context.Context, q interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}, r *model.Round) {
	payload, err := json.Marshal(map[string]any{
		"Table":   "rounds",
		"OnID":    r.SeqNo,
		"Version": r.OptimisticLock,
	})
	if err != nil {
		return
	}
	if _, err := q.Exec(ctx, `SELECT pg_notify('rounds_changes', $1)`, string(payload)); err != nil {
		log.Printf("warning: pg_notify failed for round %d: %v", r.SeqNo, err)
	}
}

func (s *DBStorage) CreateRound(ctx context.Context, r *model.Round) error {
	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	// A new round is only legal once the previous one has settled.
	var unsettled int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM rounds WHERE NOT (model_data->>'FeesFinal')::boolean`).Scan(&unsettled)
	if err != nil {
		return err
	}
	if unsettled > 0 {
		return fmt.Errorf("previous round not settled: %w", ErrConflict)
	}

	bytes, err := marshalRound(r)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO rounds (seq_no, optimistic_lock, model_data) VALUES ($1, 1, $2)`,
		r.SeqNo, bytes); err != nil {
		return fmt.Errorf("can't insert round %d: %w", r.SeqNo, err)
	}
	r.OptimisticLock = 1

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *DBStorage) fetchRoundQuery(ctx context.Context, query string, args ...any) (*model.Round, error) {
	var seqNo, lock int64
	var bytes []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&seqNo, &lock, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r := &model.Round{}
	if err := json.Unmarshal(bytes, r); err != nil {
		return nil, fmt.Errorf("can't unmarshal round %d: %w", seqNo, err)
	}
	// These come from the database row, not the JSON.
	r.SeqNo = seqNo
	r.OptimisticLock = lock
	return r, nil
}

func (s *DBStorage) FetchRound(ctx context.Context, seqNo int64) (*model.Round, error) {
	return s.fetchRoundQuery(ctx,
		`SELECT seq_no, optimistic_lock, model_data FROM rounds WHERE seq_no=$1`, seqNo)
}

func (s *DBStorage) CurrentRound(ctx context.Context) (*model.Round, error) {
	return s.fetchRoundQuery(ctx,
		`SELECT seq_no, optimistic_lock, model_data FROM rounds ORDER BY seq_no DESC LIMIT 1`)
}

// saveRoundTx updates the round under its optimistic lock and bumps it.
func (s *DBStorage) saveRoundTx(ctx context.Context, tx *dbutil.Tx, r *model.Round) error {
	bytes, err := marshalRound(r)
	if err != nil {
		return err
	}
	result, err := tx.Exec(ctx,
		`UPDATE rounds SET optimistic_lock=$1+1, model_data=$2 WHERE seq_no=$3 AND optimistic_lock=$1`,
		r.OptimisticLock, bytes, r.SeqNo)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("optimistic lock failure on round %d: %w", r.SeqNo, ErrConflict)
	}
	r.OptimisticLock++
	return nil
}

func (s *DBStorage) SaveRound(ctx context.Context, r *model.Round) error {
	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	if err := s.saveRoundTx(ctx, tx, r); err != nil {
		return err
	}
	s.notifyRound(ctx, tx, r)
	return tx.Commit()
}

func (s *DBStorage) RecordStake(ctx context.Context, r *model.Round, st *model.Stake, firstStake bool) error {
	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	if err := s.saveRoundTx(ctx, tx, r); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO stakes (seq_no, competitor, staker, idx, amount, aggregated, paid)
		 VALUES ($1, $2, $3, $4, $5, false, false)
		 ON CONFLICT (seq_no, competitor, staker) DO UPDATE SET amount=$5`,
		r.SeqNo, st.Competitor, st.Staker, st.Index, st.Amount); err != nil {
		return fmt.Errorf("can't upsert stake: %w", err)
	}

	if firstStake {
		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (account) VALUES ($1) ON CONFLICT DO NOTHING`,
			st.Staker); err != nil {
			return fmt.Errorf("can't mark participant: %w", err)
		}
	}

	s.notifyRound(ctx, tx, r)
	return tx.Commit()
}

func (s *DBStorage) SaveSettlement(ctx context.Context, r *model.Round, stakes []*model.Stake) error {
	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	if err := s.saveRoundTx(ctx, tx, r); err != nil {
		return err
	}
	for _, st := range stakes {
		if _, err := tx.Exec(ctx,
			`UPDATE stakes SET aggregated=$1, paid=$2 WHERE seq_no=$3 AND competitor=$4 AND staker=$5`,
			st.Aggregated, st.Paid, r.SeqNo, st.Competitor, st.Staker); err != nil {
			return fmt.Errorf("can't update stake flags: %w", err)
		}
	}

	s.notifyRound(ctx, tx, r)
	return tx.Commit()
}

func scanStake(rows *sql.Rows) (*model.Stake, error) {
	st := &model.Stake{}
	err := rows.Scan(&st.Competitor, &st.Staker, &st.Index, &st.Amount, &st.Aggregated, &st.Paid)
	return st, err
}

func (s *DBStorage) FetchStake(ctx context.Context, seqNo int64, competitor, staker string) (*model.Stake, error) {
	st := &model.Stake{}
	err := s.db.QueryRowContext(ctx,
		`SELECT competitor, staker, idx, amount, aggregated, paid
		 FROM stakes WHERE seq_no=$1 AND competitor=$2 AND staker=$3`,
		seqNo, competitor, staker).
		Scan(&st.Competitor, &st.Staker, &st.Index, &st.Amount, &st.Aggregated, &st.Paid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *DBStorage) FetchStakeRange(ctx context.Context, seqNo int64, competitor string, start, end int) ([]*model.Stake, error) {
	start, end = ledger.Clamp(start, end, int(^uint(0)>>1))
	rows, err := s.db.QueryContext(ctx,
		`SELECT competitor, staker, idx, amount, aggregated, paid
		 FROM stakes WHERE seq_no=$1 AND competitor=$2 AND idx >= $3 AND idx < $4
		 ORDER BY idx`,
		seqNo, competitor, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stakes := []*model.Stake{}
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, st)
	}
	return stakes, rows.Err()
}

func (s *DBStorage) IsParticipant(ctx context.Context, account string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM participants WHERE account=$1`, account).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DBStorage) FetchOverview(ctx context.Context, offset, limit int) (*model.Overview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq_no, model_data FROM rounds ORDER BY seq_no DESC OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overview := &model.Overview{}
	for rows.Next() {
		var seqNo int64
		var bytes []byte
		if err := rows.Scan(&seqNo, &bytes); err != nil {
			log.Printf("row scan failed: %v", err)
			continue
		}
		r := model.Round{}
		if err := json.Unmarshal(bytes, &r); err != nil {
			log.Printf("JSON unmarshal failed for round %d: %v", seqNo, err)
			continue
		}
		overview.Slugs = append(overview.Slugs, model.RoundSlug{
			SeqNo:       seqNo,
			Competitors: r.Competitors,
			TotalStaked: r.TotalStaked,
		})
	}
	return overview, rows.Err()
}

func (s *DBStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, nick, is_admin, is_operator FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*model.UserIdentity{}
	for rows.Next() {
		u := &model.UserIdentity{}
		if err := rows.Scan(&u.ID, &u.Nick, &u.IsAdmin, &u.IsOperator); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *DBStorage) CreateUser(ctx context.Context, nick, passwordHash string, isAdmin, isOperator bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (nick, password_hash, is_admin, is_operator) VALUES ($1, $2, $3, $4)`,
		nick, passwordHash, isAdmin, isOperator)
	return err
}

func (s *DBStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	u := &model.UserIdentity{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, nick, is_admin, is_operator FROM users WHERE user_id=$1`, id).
		Scan(&u.ID, &u.Nick, &u.IsAdmin, &u.IsOperator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *DBStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	row := &model.UserRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, nick, password_hash, is_admin, is_operator FROM users WHERE nick=$1`, nick).
		Scan(&row.ID, &row.Nick, &row.PasswordHash, &row.IsAdmin, &row.IsOperator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *DBStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE nick=$1`, nick)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DBStorage) SetOperator(ctx context.Context, nick string, isOperator bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_operator=$1 WHERE nick=$2`, isOperator, nick)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DBStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	var lock int64
	var bytes []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT optimistic_lock, model_data FROM site_config WHERE singleton_id=1`).
		Scan(&lock, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		// A fresh database has no config row yet; start empty.
		return &model.SiteConfig{}, nil
	}
	if err != nil {
		return nil, err
	}

	config := &model.SiteConfig{}
	if err := json.Unmarshal(bytes, config); err != nil {
		return nil, fmt.Errorf("can't unmarshal site config: %w", err)
	}
	config.OptimisticLock = lock
	return config, nil
}

func (s *DBStorage) SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error {
	cpy := *config
	cpy.OptimisticLock = 0
	bytes, err := json.Marshal(&cpy)
	if err != nil {
		return err
	}

	if config.OptimisticLock == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO site_config (singleton_id, optimistic_lock, model_data) VALUES (1, 1, $1)
			 ON CONFLICT (singleton_id) DO NOTHING`, bytes)
		if err == nil {
			config.OptimisticLock = 1
		}
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE site_config SET optimistic_lock=$1+1, model_data=$2 WHERE singleton_id=1 AND optimistic_lock=$1`,
		config.OptimisticLock, bytes)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("optimistic lock failure on site config: %w", ErrConflict)
	}
	config.OptimisticLock++
	return nil
}
