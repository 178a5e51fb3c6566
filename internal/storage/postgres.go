package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucametrics/attribution-core/internal/models"
)

// PostgresOrderRepo implements OrderRepo using PostgreSQL.
type PostgresOrderRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOrderRepo(pool *pgxpool.Pool) *PostgresOrderRepo {
	return &PostgresOrderRepo{pool: pool}
}

func (r *PostgresOrderRepo) Upsert(ctx context.Context, o *models.Order) error {
	var rawJSON []byte
	if o.RawData != nil {
		var err error
		rawJSON, err = json.Marshal(o.RawData)
		if err != nil {
			return fmt.Errorf("failed to marshal raw order data: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (
			organization_id, source, external_id, store_id, order_date,
			total_amount, currency, status, customer_id, customer_email,
			is_new_customer, raw_data, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (organization_id, source, external_id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			order_date = EXCLUDED.order_date,
			total_amount = EXCLUDED.total_amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			customer_id = EXCLUDED.customer_id,
			customer_email = EXCLUDED.customer_email,
			is_new_customer = EXCLUDED.is_new_customer,
			raw_data = EXCLUDED.raw_data,
			synced_at = EXCLUDED.synced_at
	`, o.OrganizationID, o.Source, o.ExternalID, o.StoreID, o.OrderDate,
		o.TotalAmount, o.Currency, o.Status, nullString(o.CustomerID), nullString(o.CustomerEmail),
		o.IsNewCustomer, rawJSON, o.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepo) Get(ctx context.Context, orgID string, source models.OrderSource, externalID string) (*models.Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT organization_id, source, external_id, store_id, order_date,
			   total_amount, currency, status, customer_id, customer_email,
			   is_new_customer, raw_data, synced_at
		FROM orders
		WHERE organization_id = $1 AND source = $2 AND external_id = $3
	`, orgID, source, externalID)

	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (r *PostgresOrderRepo) ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id, source, external_id, store_id, order_date,
			   total_amount, currency, status, customer_id, customer_email,
			   is_new_customer, raw_data, synced_at
		FROM orders
		WHERE organization_id = $1 AND order_date >= $2 AND order_date <= $3
		ORDER BY order_date
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

func (r *PostgresOrderRepo) DeleteByOrganization(ctx context.Context, orgID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE organization_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete orders: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var customerID, customerEmail *string
	var rawJSON []byte

	err := row.Scan(&o.OrganizationID, &o.Source, &o.ExternalID, &o.StoreID, &o.OrderDate,
		&o.TotalAmount, &o.Currency, &o.Status, &customerID, &customerEmail,
		&o.IsNewCustomer, &rawJSON, &o.SyncedAt)
	if err != nil {
		return nil, err
	}

	if customerID != nil {
		o.CustomerID = *customerID
	}
	if customerEmail != nil {
		o.CustomerEmail = *customerEmail
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &o.RawData); err != nil {
			return nil, fmt.Errorf("failed to parse raw order data: %w", err)
		}
	}

	return &o, nil
}

// PostgresSpendRepo implements SpendRepo using PostgreSQL.
type PostgresSpendRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSpendRepo(pool *pgxpool.Pool) *PostgresSpendRepo {
	return &PostgresSpendRepo{pool: pool}
}

func (r *PostgresSpendRepo) Upsert(ctx context.Context, s *models.DailySpend) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_spend (
			organization_id, account_id, date, platform, spend, currency,
			impressions, clicks, conversions, estimated, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (organization_id, account_id, date) DO UPDATE SET
			platform = EXCLUDED.platform,
			spend = EXCLUDED.spend,
			currency = EXCLUDED.currency,
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			estimated = EXCLUDED.estimated,
			synced_at = EXCLUDED.synced_at
	`, s.OrganizationID, s.AccountID, models.Day(s.Date), s.Platform, s.Spend, s.Currency,
		s.Impressions, s.Clicks, s.Conversions, s.Estimated, s.SyncedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert daily spend: %w", err)
	}
	return nil
}

func (r *PostgresSpendRepo) ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailySpend, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id, account_id, date, platform, spend, currency,
			   impressions, clicks, conversions, estimated, synced_at
		FROM daily_spend
		WHERE organization_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`, orgID, models.Day(start), models.Day(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily spend: %w", err)
	}
	defer rows.Close()

	var result []*models.DailySpend
	for rows.Next() {
		var s models.DailySpend
		if err := rows.Scan(&s.OrganizationID, &s.AccountID, &s.Date, &s.Platform, &s.Spend, &s.Currency,
			&s.Impressions, &s.Clicks, &s.Conversions, &s.Estimated, &s.SyncedAt); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}

	return result, rows.Err()
}

// PostgresMetricsRepo implements MetricsRepo using PostgreSQL.
type PostgresMetricsRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMetricsRepo(pool *pgxpool.Pool) *PostgresMetricsRepo {
	return &PostgresMetricsRepo{pool: pool}
}

func (r *PostgresMetricsRepo) Upsert(ctx context.Context, m *models.DailyMetrics) error {
	var spendJSON []byte
	if m.SpendByPlatform != nil {
		var err error
		spendJSON, err = json.Marshal(m.SpendByPlatform)
		if err != nil {
			return fmt.Errorf("failed to marshal platform spend: %w", err)
		}
	}
	var revenueJSON []byte
	if m.RevenueBySource != nil {
		var err error
		revenueJSON, err = json.Marshal(m.RevenueBySource)
		if err != nil {
			return fmt.Errorf("failed to marshal source revenue: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_metrics (
			organization_id, date, store_id, revenue, revenue_by_source,
			orders_count, average_order_value, new_customers_count, total_spend,
			spend_by_platform, spend_estimated, net_profit, roas, mer,
			net_margin, ncpa, last_sync_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (organization_id, date, store_id) DO UPDATE SET
			revenue = EXCLUDED.revenue,
			revenue_by_source = EXCLUDED.revenue_by_source,
			orders_count = EXCLUDED.orders_count,
			average_order_value = EXCLUDED.average_order_value,
			new_customers_count = EXCLUDED.new_customers_count,
			total_spend = EXCLUDED.total_spend,
			spend_by_platform = EXCLUDED.spend_by_platform,
			spend_estimated = EXCLUDED.spend_estimated,
			net_profit = EXCLUDED.net_profit,
			roas = EXCLUDED.roas,
			mer = EXCLUDED.mer,
			net_margin = EXCLUDED.net_margin,
			ncpa = EXCLUDED.ncpa,
			last_sync_at = EXCLUDED.last_sync_at
	`, m.OrganizationID, models.Day(m.Date), m.StoreID, m.Revenue, revenueJSON,
		m.OrdersCount, m.AverageOrderValue, m.NewCustomersCount, m.TotalSpend,
		spendJSON, m.SpendEstimated, m.NetProfit, m.ROAS, m.MER,
		m.NetMargin, m.NCPA, m.LastSyncAt)

	if err != nil {
		return fmt.Errorf("failed to upsert daily metrics: %w", err)
	}
	return nil
}

func (r *PostgresMetricsRepo) Get(ctx context.Context, orgID string, date time.Time, storeID string) (*models.DailyMetrics, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT organization_id, date, store_id, revenue, revenue_by_source,
			   orders_count, average_order_value, new_customers_count, total_spend,
			   spend_by_platform, spend_estimated, net_profit, roas, mer,
			   net_margin, ncpa, last_sync_at
		FROM daily_metrics
		WHERE organization_id = $1 AND date = $2 AND store_id = $3
	`, orgID, models.Day(date), storeID)

	m, err := scanDailyMetrics(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily metrics: %w", err)
	}
	return m, nil
}

func (r *PostgresMetricsRepo) ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailyMetrics, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id, date, store_id, revenue, revenue_by_source,
			   orders_count, average_order_value, new_customers_count, total_spend,
			   spend_by_platform, spend_estimated, net_profit, roas, mer,
			   net_margin, ncpa, last_sync_at
		FROM daily_metrics
		WHERE organization_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`, orgID, models.Day(start), models.Day(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily metrics: %w", err)
	}
	defer rows.Close()

	var result []*models.DailyMetrics
	for rows.Next() {
		m, err := scanDailyMetrics(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

func (r *PostgresMetricsRepo) Latest(ctx context.Context, orgID string) (*models.DailyMetrics, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT organization_id, date, store_id, revenue, revenue_by_source,
			   orders_count, average_order_value, new_customers_count, total_spend,
			   spend_by_platform, spend_estimated, net_profit, roas, mer,
			   net_margin, ncpa, last_sync_at
		FROM daily_metrics
		WHERE organization_id = $1
		ORDER BY last_sync_at DESC
		LIMIT 1
	`, orgID)

	m, err := scanDailyMetrics(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest metrics: %w", err)
	}
	return m, nil
}

func scanDailyMetrics(row pgx.Row) (*models.DailyMetrics, error) {
	var m models.DailyMetrics
	var spendJSON, revenueJSON []byte

	err := row.Scan(&m.OrganizationID, &m.Date, &m.StoreID, &m.Revenue, &revenueJSON,
		&m.OrdersCount, &m.AverageOrderValue, &m.NewCustomersCount, &m.TotalSpend,
		&spendJSON, &m.SpendEstimated, &m.NetProfit, &m.ROAS, &m.MER,
		&m.NetMargin, &m.NCPA, &m.LastSyncAt)
	if err != nil {
		return nil, err
	}

	if len(spendJSON) > 0 {
		if err := json.Unmarshal(spendJSON, &m.SpendByPlatform); err != nil {
			return nil, fmt.Errorf("failed to parse platform spend: %w", err)
		}
	}
	if len(revenueJSON) > 0 {
		if err := json.Unmarshal(revenueJSON, &m.RevenueBySource); err != nil {
			return nil, fmt.Errorf("failed to parse source revenue: %w", err)
		}
	}

	return &m, nil
}

// PostgresCampaignRepo implements CampaignRepo using PostgreSQL.
type PostgresCampaignRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignRepo(pool *pgxpool.Pool) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{pool: pool}
}

func (r *PostgresCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaigns (
			organization_id, platform, external_id, name, status,
			spend, impressions, clicks, conversions, last_sync_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id, platform, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			spend = EXCLUDED.spend,
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			last_sync_at = EXCLUDED.last_sync_at
	`, c.OrganizationID, c.Platform, c.ExternalID, c.Name, c.Status,
		c.Spend, c.Impressions, c.Clicks, c.Conversions, c.LastSyncAt)

	if err != nil {
		return fmt.Errorf("failed to upsert campaign: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepo) ListByOrganization(ctx context.Context, orgID string) ([]*models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id, platform, external_id, name, status,
			   spend, impressions, clicks, conversions, last_sync_at
		FROM campaigns
		WHERE organization_id = $1
		ORDER BY platform, external_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.OrganizationID, &c.Platform, &c.ExternalID, &c.Name, &c.Status,
			&c.Spend, &c.Impressions, &c.Clicks, &c.Conversions, &c.LastSyncAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, &c)
	}

	return campaigns, rows.Err()
}

// PostgresIntegrationRepo implements IntegrationRepo using PostgreSQL.
type PostgresIntegrationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresIntegrationRepo(pool *pgxpool.Pool) *PostgresIntegrationRepo {
	return &PostgresIntegrationRepo{pool: pool}
}

func (r *PostgresIntegrationRepo) ListConnected(ctx context.Context) ([]*models.Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, platform, kind, account_id, is_connected, last_sync_at
		FROM integrations
		WHERE is_connected = true
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected integrations: %w", err)
	}
	defer rows.Close()

	return scanIntegrations(rows)
}

func (r *PostgresIntegrationRepo) ListByOrganization(ctx context.Context, orgID string) ([]*models.Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, platform, kind, account_id, is_connected, last_sync_at
		FROM integrations
		WHERE organization_id = $1
		ORDER BY id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	return scanIntegrations(rows)
}

func (r *PostgresIntegrationRepo) SetLastSyncAt(ctx context.Context, integrationID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE integrations SET last_sync_at = $2 WHERE id = $1
	`, integrationID, at)
	if err != nil {
		return fmt.Errorf("failed to stamp integration sync time: %w", err)
	}
	return nil
}

func scanIntegrations(rows pgx.Rows) ([]*models.Integration, error) {
	var result []*models.Integration
	for rows.Next() {
		var in models.Integration
		var accountID *string

		if err := rows.Scan(&in.ID, &in.OrganizationID, &in.Platform, &in.Kind,
			&accountID, &in.IsConnected, &in.LastSyncAt); err != nil {
			return nil, err
		}
		if accountID != nil {
			in.AccountID = *accountID
		}
		result = append(result, &in)
	}

	return result, rows.Err()
}

// PostgresSyncLogRepo implements SyncLogRepo using PostgreSQL.
type PostgresSyncLogRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncLogRepo(pool *pgxpool.Pool) *PostgresSyncLogRepo {
	return &PostgresSyncLogRepo{pool: pool}
}

func (r *PostgresSyncLogRepo) Create(ctx context.Context, l *models.SyncLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_logs (
			id, organization_id, integration_id, type, status,
			records_processed, error, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.OrganizationID, l.IntegrationID, l.Type, l.Status,
		l.RecordsProcessed, nullString(l.Error), l.StartedAt, l.CompletedAt)

	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

func (r *PostgresSyncLogRepo) Update(ctx context.Context, l *models.SyncLog) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_logs SET
			status = $2,
			records_processed = $3,
			error = $4,
			completed_at = $5
		WHERE id = $1
	`, l.ID, l.Status, l.RecordsProcessed, nullString(l.Error), l.CompletedAt)

	if err != nil {
		return fmt.Errorf("failed to update sync log: %w", err)
	}
	return nil
}

func (r *PostgresSyncLogRepo) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, integration_id, type, status,
			   records_processed, error, started_at, completed_at
		FROM sync_logs
		WHERE organization_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		var errMsg *string

		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.IntegrationID, &l.Type, &l.Status,
			&l.RecordsProcessed, &errMsg, &l.StartedAt, &l.CompletedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			l.Error = *errMsg
		}
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
