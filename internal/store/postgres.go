package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bozweather/trader/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Nested structs (TradeSignal, weather/prediction snapshots) are stored as
// JSONB; everything else is a plain column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Forecasts ---

func (s *PostgresStore) SaveForecast(ctx context.Context, f model.Forecast) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO weather_forecasts (city, target_date, source, model_run_ts, fetched_at, predicted_high_f, raw_payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (city, target_date, source, model_run_ts) DO NOTHING`,
		f.City, f.TargetDate, f.Source, f.ModelRunTS, f.FetchedAt, f.PredictedHighF, f.RawPayload,
	)
	return err
}

func (s *PostgresStore) ForecastsFor(ctx context.Context, city, targetDate string) ([]model.Forecast, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city, target_date, source, model_run_ts, fetched_at, predicted_high_f, raw_payload
		 FROM weather_forecasts WHERE city = $1 AND target_date = $2 ORDER BY fetched_at DESC`,
		city, targetDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Forecast
	for rows.Next() {
		var f model.Forecast
		if err := rows.Scan(&f.City, &f.TargetDate, &f.Source, &f.ModelRunTS, &f.FetchedAt, &f.PredictedHighF, &f.RawPayload); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- Predictions ---

func (s *PostgresStore) SavePrediction(ctx context.Context, p model.EnsemblePrediction) error {
	sourceNames, err := json.Marshal(p.SourceNames)
	if err != nil {
		return fmt.Errorf("marshal source_names: %w", err)
	}
	brackets, err := json.Marshal(p.BracketProbabilities)
	if err != nil {
		return fmt.Errorf("marshal bracket_probabilities: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (city, target_date, ensemble_high_f, forecast_spread_f, error_std_f, confidence, source_names, bracket_probabilities, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.City, p.TargetDate, p.EnsembleHighF, p.ForecastSpreadF, p.ErrorStdF, p.Confidence, sourceNames, brackets, p.GeneratedAt,
	)
	return err
}

func (s *PostgresStore) LatestPrediction(ctx context.Context, city, targetDate string) (model.EnsemblePrediction, error) {
	var p model.EnsemblePrediction
	var sourceNames, brackets []byte

	err := s.pool.QueryRow(ctx,
		`SELECT city, target_date, ensemble_high_f, forecast_spread_f, error_std_f, confidence, source_names, bracket_probabilities, generated_at
		 FROM predictions WHERE city = $1 AND target_date = $2 ORDER BY generated_at DESC LIMIT 1`,
		city, targetDate).
		Scan(&p.City, &p.TargetDate, &p.EnsembleHighF, &p.ForecastSpreadF, &p.ErrorStdF, &p.Confidence, &sourceNames, &brackets, &p.GeneratedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.EnsemblePrediction{}, errNotFound("prediction", city+"/"+targetDate)
		}
		return model.EnsemblePrediction{}, fmt.Errorf("latest prediction %s/%s: %w", city, targetDate, err)
	}

	if err := json.Unmarshal(sourceNames, &p.SourceNames); err != nil {
		return model.EnsemblePrediction{}, fmt.Errorf("unmarshal source_names: %w", err)
	}
	if err := json.Unmarshal(brackets, &p.BracketProbabilities); err != nil {
		return model.EnsemblePrediction{}, fmt.Errorf("unmarshal bracket_probabilities: %w", err)
	}
	return p, nil
}

// --- Settlements ---

func (s *PostgresStore) SaveSettlement(ctx context.Context, st model.Settlement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (city, target_date, actual_high_f, source, raw_report, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (city, target_date) DO UPDATE
		 SET actual_high_f = EXCLUDED.actual_high_f, source = EXCLUDED.source,
		     raw_report = EXCLUDED.raw_report, fetched_at = EXCLUDED.fetched_at`,
		st.City, st.TargetDate, st.ActualHighF, st.Source, st.RawReport, st.FetchedAt,
	)
	return err
}

func (s *PostgresStore) GetSettlement(ctx context.Context, city, targetDate string) (model.Settlement, error) {
	var st model.Settlement
	err := s.pool.QueryRow(ctx,
		`SELECT city, target_date, actual_high_f, source, raw_report, fetched_at
		 FROM settlements WHERE city = $1 AND target_date = $2`, city, targetDate).
		Scan(&st.City, &st.TargetDate, &st.ActualHighF, &st.Source, &st.RawReport, &st.FetchedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Settlement{}, errNotFound("settlement", city+"/"+targetDate)
		}
		return model.Settlement{}, fmt.Errorf("get settlement %s/%s: %w", city, targetDate, err)
	}
	return st, nil
}

func (s *PostgresStore) UnsettledTrades(ctx context.Context, city, targetDate string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeRecordColumns+`
		 FROM trade_records WHERE city = $1 AND target_date = $2 AND status = $3
		 ORDER BY created_at`, city, targetDate, model.TradeStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

// --- Pending trades ---

func (s *PostgresStore) SavePendingTrade(ctx context.Context, p model.PendingTrade) error {
	signal, err := json.Marshal(p.Signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	weatherSnap, err := json.Marshal(p.WeatherSnapshot)
	if err != nil {
		return fmt.Errorf("marshal weather_snapshot: %w", err)
	}
	predictionSnap, err := json.Marshal(p.PredictionSnapshot)
	if err != nil {
		return fmt.Errorf("marshal prediction_snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_trades (id, user_id, signal, weather_snapshot, prediction_snapshot, created_at, expires_at, status, acted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, signal, weatherSnap, predictionSnap, p.CreatedAt, p.ExpiresAt, p.Status, p.ActedAt,
	)
	return err
}

func (s *PostgresStore) GetPendingTrade(ctx context.Context, id string) (model.PendingTrade, error) {
	var p model.PendingTrade
	var signal, weatherSnap, predictionSnap []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, signal, weather_snapshot, prediction_snapshot, created_at, expires_at, status, acted_at
		 FROM pending_trades WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &signal, &weatherSnap, &predictionSnap, &p.CreatedAt, &p.ExpiresAt, &p.Status, &p.ActedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.PendingTrade{}, errNotFound("pending trade", id)
		}
		return model.PendingTrade{}, fmt.Errorf("get pending trade %s: %w", id, err)
	}
	if err := json.Unmarshal(signal, &p.Signal); err != nil {
		return model.PendingTrade{}, fmt.Errorf("unmarshal signal: %w", err)
	}
	if err := json.Unmarshal(weatherSnap, &p.WeatherSnapshot); err != nil {
		return model.PendingTrade{}, fmt.Errorf("unmarshal weather_snapshot: %w", err)
	}
	if err := json.Unmarshal(predictionSnap, &p.PredictionSnapshot); err != nil {
		return model.PendingTrade{}, fmt.Errorf("unmarshal prediction_snapshot: %w", err)
	}
	return p, nil
}

// CASStatus performs the compare-and-swap as a single conditional UPDATE so
// concurrent callers racing on the same id can never both succeed.
func (s *PostgresStore) CASStatus(ctx context.Context, id string, expected, next model.PendingStatus, actedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_trades SET status = $1, acted_at = $2 WHERE id = $3 AND status = $4`,
		next, actedAt, id, expected,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pending_trades WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, errNotFound("pending trade", id)
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) ListExpiring(ctx context.Context, before time.Time) ([]model.PendingTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, signal, weather_snapshot, prediction_snapshot, created_at, expires_at, status, acted_at
		 FROM pending_trades WHERE status = $1 AND expires_at < $2`,
		model.PendingStatusPending, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingTrade
	for rows.Next() {
		var p model.PendingTrade
		var signal, weatherSnap, predictionSnap []byte
		if err := rows.Scan(&p.ID, &p.UserID, &signal, &weatherSnap, &predictionSnap, &p.CreatedAt, &p.ExpiresAt, &p.Status, &p.ActedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(signal, &p.Signal); err != nil {
			return nil, fmt.Errorf("unmarshal signal: %w", err)
		}
		if err := json.Unmarshal(weatherSnap, &p.WeatherSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal weather_snapshot: %w", err)
		}
		if err := json.Unmarshal(predictionSnap, &p.PredictionSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal prediction_snapshot: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Trade records ---

const tradeRecordColumns = `id, user_id, exchange_order_id, city, target_date, bracket_ticker, bracket_label,
	side, entry_price_cents, quantity, model_prob, market_prob, ev_at_entry, confidence,
	weather_snapshot, prediction_snapshot, status, settlement_temp_f, pnl_cents, postmortem,
	created_at, settled_at`

func (s *PostgresStore) SaveTradeRecord(ctx context.Context, t model.TradeRecord) error {
	weatherSnap, err := json.Marshal(t.WeatherSnapshot)
	if err != nil {
		return fmt.Errorf("marshal weather_snapshot: %w", err)
	}
	predictionSnap, err := json.Marshal(t.PredictionSnapshot)
	if err != nil {
		return fmt.Errorf("marshal prediction_snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trade_records (`+tradeRecordColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		t.ID, t.UserID, t.ExchangeOrderID, t.City, t.TargetDate, t.BracketTicker, t.BracketLabel,
		t.Side, t.EntryPriceCents, t.Quantity, t.ModelProbability, t.MarketProbability, t.EVAtEntry, t.Confidence,
		weatherSnap, predictionSnap, t.Status, t.SettlementTempF, t.PnLCents, t.PostmortemNarrative,
		t.CreatedAt, t.SettledAt,
	)
	return err
}

func (s *PostgresStore) UpdateTradeSettlement(ctx context.Context, id string, status model.TradeStatus, settlementTempF float64, pnlCents model.Cents, narrative string, settledAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trade_records SET status = $1, settlement_temp_f = $2, pnl_cents = $3, postmortem = $4, settled_at = $5
		 WHERE id = $6`,
		status, settlementTempF, pnlCents, narrative, settledAt, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound("trade record", id)
	}
	return nil
}

func (s *PostgresStore) TradesForUser(ctx context.Context, userID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeRecordColumns+` FROM trade_records WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

func (s *PostgresStore) OpenTradesForUser(ctx context.Context, userID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeRecordColumns+` FROM trade_records WHERE user_id = $1 AND status = $2 ORDER BY created_at`,
		userID, model.TradeStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTradeRecords(rows pgxRows) ([]model.TradeRecord, error) {
	var out []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var weatherSnap, predictionSnap []byte
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.ExchangeOrderID, &t.City, &t.TargetDate, &t.BracketTicker, &t.BracketLabel,
			&t.Side, &t.EntryPriceCents, &t.Quantity, &t.ModelProbability, &t.MarketProbability, &t.EVAtEntry, &t.Confidence,
			&weatherSnap, &predictionSnap, &t.Status, &t.SettlementTempF, &t.PnLCents, &t.PostmortemNarrative,
			&t.CreatedAt, &t.SettledAt,
		); err != nil {
			return nil, err
		}
		if len(weatherSnap) > 0 {
			if err := json.Unmarshal(weatherSnap, &t.WeatherSnapshot); err != nil {
				return nil, fmt.Errorf("unmarshal weather_snapshot: %w", err)
			}
		}
		if len(predictionSnap) > 0 {
			if err := json.Unmarshal(predictionSnap, &t.PredictionSnapshot); err != nil {
				return nil, fmt.Errorf("unmarshal prediction_snapshot: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Risk state ---

func (s *PostgresStore) RiskStateFor(ctx context.Context, userID string, since time.Time) (model.RiskState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_price_cents, quantity, status, pnl_cents, created_at, settled_at
		 FROM trade_records WHERE user_id = $1 AND created_at > $2 ORDER BY COALESCE(settled_at, created_at)`,
		userID, since)
	if err != nil {
		return model.RiskState{}, err
	}
	defer rows.Close()

	state := model.RiskState{UserID: userID}
	for rows.Next() {
		var entryPriceCents model.Cents
		var quantity int64
		var status model.TradeStatus
		var pnlCents *model.Cents
		var createdAt time.Time
		var settledAt *time.Time

		if err := rows.Scan(&entryPriceCents, &quantity, &status, &pnlCents, &createdAt, &settledAt); err != nil {
			return model.RiskState{}, err
		}

		addCents(&state.DailyExposureCents, createdAt.Format("2006-01-02"), model.Cents(quantity)*entryPriceCents)

		switch status {
		case model.TradeStatusWon:
			state.ConsecutiveLosses = 0
			if pnlCents != nil && settledAt != nil {
				addCents(&state.DailyRealizedPnLCents, settledAt.Format("2006-01-02"), *pnlCents)
			}
		case model.TradeStatusLost:
			state.ConsecutiveLosses++
			if settledAt != nil {
				at := *settledAt
				state.LastLossAt = &at
			}
			if pnlCents != nil && settledAt != nil {
				addCents(&state.DailyRealizedPnLCents, settledAt.Format("2006-01-02"), *pnlCents)
			}
		}
	}
	return state, rows.Err()
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, mode, max_trade_size_cents, daily_loss_limit_cents, max_daily_exposure_cents, min_ev_threshold, consecutive_loss_limit, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Name, u.Mode, u.MaxTradeSizeCents, u.DailyLossLimitCents, u.MaxDailyExposureCents, u.MinEVThreshold, u.ConsecutiveLossLimit, u.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, mode, max_trade_size_cents, daily_loss_limit_cents, max_daily_exposure_cents, min_ev_threshold, consecutive_loss_limit, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Mode, &u.MaxTradeSizeCents, &u.DailyLossLimitCents, &u.MaxDailyExposureCents, &u.MinEVThreshold, &u.ConsecutiveLossLimit, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.User{}, errNotFound("user", id)
		}
		return model.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, mode, max_trade_size_cents, daily_loss_limit_cents, max_daily_exposure_cents, min_ev_threshold, consecutive_loss_limit, created_at
		 FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Mode, &u.MaxTradeSizeCents, &u.DailyLossLimitCents, &u.MaxDailyExposureCents, &u.MinEVThreshold, &u.ConsecutiveLossLimit, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Log entries ---

func (s *PostgresStore) AppendLogEntry(ctx context.Context, e model.LogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO log_entries (id, timestamp, level, category, message, city, user_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Timestamp, e.Level, e.Category, e.Message, e.City, e.UserID,
	)
	return err
}

func (s *PostgresStore) RecentLogEntries(ctx context.Context, limit int) ([]model.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, level, category, message, city, user_id
		 FROM log_entries ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Category, &e.Message, &e.City, &e.UserID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
