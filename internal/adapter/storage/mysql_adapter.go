package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const listingColumns = `id, seller_id, name, description, price, contact, photo, type, status,
	channel_message_id, created_at, updated_at`

func scanListing(row scanner) (domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Name, &l.Description, &l.Price, &l.Contact, &l.Photo,
		&l.Kind, &l.Status, &l.ChannelMessageID, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

const orderColumns = `id, product_id, seller_id, buyer_id, status, seller_confirmed, buyer_confirmed,
	seller_message_id, buyer_message_id, created_at, updated_at`

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.ListingID, &o.SellerID, &o.BuyerID, &o.Status, &o.SellerConfirmed,
		&o.BuyerConfirmed, &o.SellerMessageID, &o.BuyerMessageID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return domain.StorageFailure(op, err)
}

func (m *MySQLAdapter) CreateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO products (seller_id, name, description, price, contact, photo, type, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.SellerID, l.Name, l.Description, l.Price, l.Contact, l.Photo, l.Kind, domain.ListingStatusPending,
	)
	if err != nil {
		return l, domain.StorageFailure("insert listing", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return l, domain.StorageFailure("insert listing", err)
	}
	return m.GetListing(ctx, id)
}

func (m *MySQLAdapter) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	return getListing(ctx, m.db, id)
}

func getListing(ctx context.Context, q queryer, id int64) (domain.Listing, error) {
	l, err := scanListing(q.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		return l, notFoundOr(fmt.Sprintf("get listing %d", id), err)
	}
	return l, nil
}

// transitionListing applies a conditional status update. When no row moves,
// the current row decides between NotFound and a StateError.
func (m *MySQLAdapter) transitionListing(ctx context.Context, id int64, from, to domain.ListingStatus, channelMessageID int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET status = ?, channel_message_id = IF(? = 0, channel_message_id, ?), updated_at = NOW()
		WHERE id = ? AND status = ?`,
		to, channelMessageID, channelMessageID, id, from,
	)
	if err != nil {
		return domain.StorageFailure("update listing", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		current, err := m.GetListing(ctx, id)
		if err != nil {
			return err
		}
		return domain.ListingStateError(current)
	}
	return nil
}

func (m *MySQLAdapter) MarkApproved(ctx context.Context, id int64, channelMessageID int) error {
	return m.transitionListing(ctx, id, domain.ListingStatusPending, domain.ListingStatusApproved, channelMessageID)
}

func (m *MySQLAdapter) MarkRejected(ctx context.Context, id int64) error {
	return m.transitionListing(ctx, id, domain.ListingStatusPending, domain.ListingStatusRejected, 0)
}

func (m *MySQLAdapter) DeleteListing(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return domain.StorageFailure("delete listing", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("delete listing %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) ListListings(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error) {
	return m.queryListings(ctx, `SELECT `+listingColumns+` FROM products WHERE status = ? ORDER BY id DESC`, status)
}

func (m *MySQLAdapter) CatalogPage(ctx context.Context, kind domain.ListingKind, offset, limit int) ([]domain.Listing, error) {
	return m.queryListings(ctx, `
		SELECT `+listingColumns+` FROM products
		WHERE status = ? AND type = ?
		ORDER BY id DESC LIMIT ? OFFSET ?`,
		domain.ListingStatusApproved, kind, limit, offset,
	)
}

func (m *MySQLAdapter) queryListings(ctx context.Context, query string, args ...any) ([]domain.Listing, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageFailure("query listings", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, domain.StorageFailure("scan listing", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("query listings", err)
	}
	return out, nil
}

// CreateOrder checks the one-active-order-per-user rule and inserts in one transaction.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return o, domain.StorageFailure("begin tx", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM orders
		WHERE status = ? AND (buyer_id IN (?, ?) OR seller_id IN (?, ?))
		LIMIT 1 FOR UPDATE`,
		domain.OrderStatusInProgress, o.BuyerID, o.SellerID, o.BuyerID, o.SellerID,
	).Scan(&existing)
	switch {
	case err == nil:
		return o, fmt.Errorf("order %d is open: %w", existing, domain.ErrActiveOrder)
	case !errors.Is(err, sql.ErrNoRows):
		return o, domain.StorageFailure("check active orders", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (product_id, seller_id, buyer_id, status)
		VALUES (?, ?, ?, ?)`,
		o.ListingID, o.SellerID, o.BuyerID, domain.OrderStatusInProgress,
	)
	if err != nil {
		return o, domain.StorageFailure("insert order", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return o, domain.StorageFailure("insert order", err)
	}

	created, err := getOrder(ctx, tx, id, false)
	if err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, domain.StorageFailure("commit order", err)
	}
	return created, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return getOrder(ctx, m.db, id, false)
}

func getOrder(ctx context.Context, q queryer, id int64, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return o, notFoundOr(fmt.Sprintf("get order %d", id), err)
	}
	return o, nil
}

func (m *MySQLAdapter) ActiveOrderByUser(ctx context.Context, userID int64) (domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND (seller_id = ? OR buyer_id = ?)
		ORDER BY id DESC LIMIT 1`,
		domain.OrderStatusInProgress, userID, userID,
	))
	if err != nil {
		return o, notFoundOr(fmt.Sprintf("active order of %d", userID), err)
	}
	return o, nil
}

func (m *MySQLAdapter) ListActiveOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY id`, domain.OrderStatusInProgress)
	if err != nil {
		return nil, domain.StorageFailure("query orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.StorageFailure("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("query orders", err)
	}
	return out, nil
}

func (m *MySQLAdapter) SetActionMessages(ctx context.Context, orderID int64, sellerMessageID, buyerMessageID int) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders SET seller_message_id = ?, buyer_message_id = ?, updated_at = NOW()
		WHERE id = ?`,
		sellerMessageID, buyerMessageID, orderID,
	)
	if err != nil {
		return domain.StorageFailure("update order messages", err)
	}
	return nil
}

// Confirm sets one confirmation flag under a row lock and returns both flags as committed.
func (m *MySQLAdapter) Confirm(ctx context.Context, orderID int64, role domain.Role) (domain.Order, error) {
	column := "buyer_confirmed"
	if role == domain.RoleSeller {
		column = "seller_confirmed"
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.StorageFailure("begin tx", err)
	}
	defer tx.Rollback()

	o, err := getOrder(ctx, tx, orderID, true)
	if err != nil {
		return o, err
	}
	if o.Status != domain.OrderStatusInProgress {
		return o, domain.OrderStateError(o)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET `+column+` = 1, updated_at = NOW() WHERE id = ?`, orderID); err != nil {
		return o, domain.StorageFailure("confirm order", err)
	}
	if err := tx.Commit(); err != nil {
		return o, domain.StorageFailure("commit confirm", err)
	}

	if role == domain.RoleSeller {
		o.SellerConfirmed = true
	} else {
		o.BuyerConfirmed = true
	}
	return o, nil
}

// closeOrder moves an in-progress order to status; for completed it also marks the listing sold.
func (m *MySQLAdapter) closeOrder(ctx context.Context, orderID int64, status domain.OrderStatus) (domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.StorageFailure("begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW()
		WHERE id = ? AND status = ?`,
		status, orderID, domain.OrderStatusInProgress,
	)
	if err != nil {
		return domain.Order{}, domain.StorageFailure("close order", err)
	}

	o, err := getOrder(ctx, tx, orderID, false)
	if err != nil {
		return o, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return o, domain.OrderStateError(o)
	}

	if status == domain.OrderStatusCompleted {
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET status = ?, updated_at = NOW()
			WHERE id = ? AND status = ?`,
			domain.ListingStatusSold, o.ListingID, domain.ListingStatusApproved,
		)
		if err != nil {
			return o, domain.StorageFailure("mark listing sold", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return o, domain.StorageFailure("commit close", err)
	}
	return o, nil
}

func (m *MySQLAdapter) CompleteOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	return m.closeOrder(ctx, orderID, domain.OrderStatusCompleted)
}

func (m *MySQLAdapter) CancelOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	return m.closeOrder(ctx, orderID, domain.OrderStatusCanceled)
}

func (m *MySQLAdapter) EnsureUser(ctx context.Context, userID int64) (bool, error) {
	if _, err := m.db.ExecContext(ctx, `INSERT IGNORE INTO users (user_id, can_sell) VALUES (?, 1)`, userID); err != nil {
		return false, domain.StorageFailure("insert user", err)
	}
	var canSell bool
	if err := m.db.QueryRowContext(ctx, `SELECT can_sell FROM users WHERE user_id = ?`, userID).Scan(&canSell); err != nil {
		return false, domain.StorageFailure("read user", err)
	}
	return canSell, nil
}

func (m *MySQLAdapter) SetCanSell(ctx context.Context, userID int64, canSell bool) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (user_id, can_sell) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE can_sell = VALUES(can_sell)`,
		userID, canSell,
	)
	if err != nil {
		return domain.StorageFailure("set can_sell", err)
	}
	return nil
}

func (m *MySQLAdapter) ListUserIDs(ctx context.Context) ([]int64, error) {
	return m.queryIDs(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

func (m *MySQLAdapter) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageFailure("query ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, domain.StorageFailure("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("query ids", err)
	}
	return ids, nil
}

func (m *MySQLAdapter) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.StorageFailure("read admin", err)
	}
	return true, nil
}

func (m *MySQLAdapter) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT user_id, added_by, created_at FROM admins ORDER BY user_id`)
	if err != nil {
		return nil, domain.StorageFailure("query admins", err)
	}
	defer rows.Close()

	var out []domain.Admin
	for rows.Next() {
		var a domain.Admin
		if err := rows.Scan(&a.UserID, &a.AddedBy, &a.CreatedAt); err != nil {
			return nil, domain.StorageFailure("scan admin", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("query admins", err)
	}
	return out, nil
}

func (m *MySQLAdapter) AddAdmin(ctx context.Context, a domain.Admin) error {
	if _, err := m.db.ExecContext(ctx, `INSERT IGNORE INTO admins (user_id, added_by) VALUES (?, ?)`, a.UserID, a.AddedBy); err != nil {
		return domain.StorageFailure("insert admin", err)
	}
	return nil
}

func (m *MySQLAdapter) RemoveAdmin(ctx context.Context, userID int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = ?`, userID)
	if err != nil {
		return domain.StorageFailure("delete admin", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("admin %d: %w", userID, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) CreateAd(ctx context.Context, ad domain.Ad) (domain.Ad, error) {
	result, err := m.db.ExecContext(ctx, `INSERT INTO ads (text, photo) VALUES (?, ?)`, ad.Text, ad.Photo)
	if err != nil {
		return ad, domain.StorageFailure("insert ad", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return ad, domain.StorageFailure("insert ad", err)
	}
	return m.GetAd(ctx, id)
}

func (m *MySQLAdapter) GetAd(ctx context.Context, id int64) (domain.Ad, error) {
	var ad domain.Ad
	err := m.db.QueryRowContext(ctx, `
		SELECT id, text, photo, channel_message_id, created_at FROM ads WHERE id = ?`, id,
	).Scan(&ad.ID, &ad.Text, &ad.Photo, &ad.ChannelMessageID, &ad.CreatedAt)
	if err != nil {
		return ad, notFoundOr(fmt.Sprintf("get ad %d", id), err)
	}
	return ad, nil
}

func (m *MySQLAdapter) SetAdChannelMessage(ctx context.Context, id int64, channelMessageID int) error {
	if _, err := m.db.ExecContext(ctx, `UPDATE ads SET channel_message_id = ? WHERE id = ?`, channelMessageID, id); err != nil {
		return domain.StorageFailure("update ad", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteAd(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM ads WHERE id = ?`, id)
	if err != nil {
		return domain.StorageFailure("delete ad", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("delete ad %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(status = 'approved'), 0),
		       COALESCE(SUM(status = 'sold'), 0),
		       (SELECT COUNT(*) FROM users)
		FROM products`,
	).Scan(&st.Listings, &st.Approved, &st.Sold, &st.Users)
	if err != nil {
		return st, domain.StorageFailure("stats", err)
	}
	return st, nil
}

func (m *MySQLAdapter) UserSummary(ctx context.Context, userID int64) (domain.UserSummary, error) {
	sum := domain.UserSummary{UserID: userID}
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT can_sell FROM users WHERE user_id = ?), 1),
		       (SELECT COUNT(*) FROM products WHERE seller_id = ?),
		       (SELECT COUNT(*) FROM products WHERE seller_id = ? AND status = 'sold'),
		       (SELECT COUNT(*) FROM orders WHERE buyer_id = ? AND status = 'completed')`,
		userID, userID, userID, userID,
	).Scan(&sum.CanSell, &sum.Listings, &sum.Sold, &sum.Bought)
	if err != nil {
		return sum, domain.StorageFailure("user summary", err)
	}
	return sum, nil
}

func (m *MySQLAdapter) TopSellers(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	return m.rank(ctx, "seller_id", limit)
}

func (m *MySQLAdapter) TopBuyers(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	return m.rank(ctx, "buyer_id", limit)
}

func (m *MySQLAdapter) rank(ctx context.Context, column string, limit int) ([]domain.RankEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS n FROM orders
		WHERE status = ?
		GROUP BY `+column+`
		ORDER BY n DESC, `+column+`
		LIMIT ?`,
		domain.OrderStatusCompleted, limit,
	)
	if err != nil {
		return nil, domain.StorageFailure("rank "+column, err)
	}
	defer rows.Close()

	var out []domain.RankEntry
	for rows.Next() {
		var e domain.RankEntry
		if err := rows.Scan(&e.UserID, &e.Orders); err != nil {
			return nil, domain.StorageFailure("scan rank", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageFailure("rank "+column, err)
	}
	return out, nil
}
