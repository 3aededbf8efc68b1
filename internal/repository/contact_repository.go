package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"contactbook/internal/errs"
	"contactbook/internal/models"
)

const contactColumns = `id, user_id, first_name, last_name, email, phone, birthday, description`

// ContactRepository scopes every statement to the owner passed in; a contact of
// another user is indistinguishable from a missing one.
type ContactRepository struct {
	pool Pool
}

func NewContactRepository(pool Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

func (r *ContactRepository) List(ctx context.Context, owner models.User, skip, limit int64) ([]models.Contact, error) {
	const op = "contacts.list"
	if err := requireOwner(op, owner); err != nil {
		return nil, err
	}
	if skip < 0 || limit < 0 {
		return nil, errs.E(errs.KindValidation, op, "skip and limit must be non-negative", nil)
	}

	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, owner.ID, limit, skip)
	if err != nil {
		return nil, translate(op, err)
	}
	return collectContacts(op, rows)
}

func (r *ContactRepository) GetByID(ctx context.Context, owner models.User, id int64) (models.Contact, error) {
	const op = "contacts.get"
	if err := requireOwner(op, owner); err != nil {
		return models.Contact{}, err
	}

	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE id = $1 AND user_id = $2
	`
	contact, err := scanContact(r.pool.QueryRow(ctx, query, id, owner.ID))
	if err != nil {
		return models.Contact{}, translate(op, err)
	}
	return contact, nil
}

func (r *ContactRepository) Create(ctx context.Context, owner models.User, input models.ContactInput) (models.Contact, error) {
	const op = "contacts.create"
	if err := requireOwner(op, owner); err != nil {
		return models.Contact{}, err
	}

	const query = `
		INSERT INTO contacts (
			user_id, first_name, last_name, email, phone, birthday, description
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING ` + contactColumns

	contact, err := scanContact(r.pool.QueryRow(ctx, query,
		owner.ID,
		input.FirstName,
		input.LastName,
		input.Email,
		input.Phone,
		input.Birthday,
		input.Description,
	))
	if err != nil {
		return models.Contact{}, translate(op, err)
	}
	return contact, nil
}

// Update applies patch inside one transaction. Fields not set in patch keep
// their stored value. Concurrent updates are last-writer-wins.
func (r *ContactRepository) Update(ctx context.Context, owner models.User, id int64, patch models.ContactPatch) (models.Contact, error) {
	const op = "contacts.update"
	if err := requireOwner(op, owner); err != nil {
		return models.Contact{}, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Contact{}, translate(op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const selectQuery = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`
	contact, err := scanContact(tx.QueryRow(ctx, selectQuery, id, owner.ID))
	if err != nil {
		return models.Contact{}, translate(op, err)
	}

	if !patch.Empty() {
		patch.Apply(&contact)

		const updateQuery = `
			UPDATE contacts
			SET first_name = $3,
			    last_name = $4,
			    email = $5,
			    phone = $6,
			    birthday = $7,
			    description = $8
			WHERE id = $1 AND user_id = $2
			RETURNING ` + contactColumns

		contact, err = scanContact(tx.QueryRow(ctx, updateQuery,
			id,
			owner.ID,
			contact.FirstName,
			contact.LastName,
			contact.Email,
			contact.Phone,
			contact.Birthday,
			contact.Description,
		))
		if err != nil {
			return models.Contact{}, translate(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Contact{}, translate(op, err)
	}
	committed = true
	return contact, nil
}

// Remove deletes the contact and returns it as it was.
func (r *ContactRepository) Remove(ctx context.Context, owner models.User, id int64) (models.Contact, error) {
	const op = "contacts.remove"
	if err := requireOwner(op, owner); err != nil {
		return models.Contact{}, err
	}

	const query = `
		DELETE FROM contacts
		WHERE id = $1 AND user_id = $2
		RETURNING ` + contactColumns

	contact, err := scanContact(r.pool.QueryRow(ctx, query, id, owner.ID))
	if err != nil {
		return models.Contact{}, translate(op, err)
	}
	return contact, nil
}

func (r *ContactRepository) Search(ctx context.Context, owner models.User, filter models.ContactFilter) ([]models.Contact, error) {
	const op = "contacts.search"
	if err := requireOwner(op, owner); err != nil {
		return nil, err
	}

	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		  AND ($2 = '' OR first_name ILIKE $2)
		  AND ($3 = '' OR last_name ILIKE $3)
		  AND ($4 = '' OR email ILIKE $4)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query,
		owner.ID,
		containsPattern(filter.FirstName),
		containsPattern(filter.LastName),
		containsPattern(filter.Email),
	)
	if err != nil {
		return nil, translate(op, err)
	}
	return collectContacts(op, rows)
}

// UpcomingBirthdays returns contacts whose birthday (month and day, any year)
// falls within seven days from today inclusive.
func (r *ContactRepository) UpcomingBirthdays(ctx context.Context, owner models.User, today time.Time) ([]models.Contact, error) {
	const op = "contacts.upcoming_birthdays"
	if err := requireOwner(op, owner); err != nil {
		return nil, err
	}

	w := NewBirthdayWindow(today)

	var (
		rows pgx.Rows
		err  error
	)
	if w.SameMonth() {
		const query = `
			SELECT ` + contactColumns + `
			FROM contacts
			WHERE user_id = $1
			  AND EXTRACT(MONTH FROM birthday) = $2
			  AND EXTRACT(DAY FROM birthday) BETWEEN $3 AND $4
			ORDER BY id
		`
		rows, err = r.pool.Query(ctx, query, owner.ID, w.StartMonth, w.StartDay, w.EndDay)
	} else {
		const query = `
			SELECT ` + contactColumns + `
			FROM contacts
			WHERE user_id = $1
			  AND (
			    (EXTRACT(MONTH FROM birthday) = $2 AND EXTRACT(DAY FROM birthday) >= $3)
			    OR (EXTRACT(MONTH FROM birthday) = $4 AND EXTRACT(DAY FROM birthday) <= $5)
			  )
			ORDER BY id
		`
		rows, err = r.pool.Query(ctx, query, owner.ID, w.StartMonth, w.StartDay, w.EndMonth, w.EndDay)
	}
	if err != nil {
		return nil, translate(op, err)
	}
	return collectContacts(op, rows)
}

func requireOwner(op string, owner models.User) error {
	if owner.ID <= 0 {
		return errs.E(errs.KindUnauthorized, op, "missing owner", nil)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns a search term into an ILIKE substring pattern, or ""
// when the term is blank so the filter is skipped.
func containsPattern(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(term) + "%"
}

func scanContact(row pgx.Row) (models.Contact, error) {
	var c models.Contact
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.Birthday,
		&c.Description,
	)
	return c, err
}

func collectContacts(op string, rows pgx.Rows) ([]models.Contact, error) {
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, translate(op, err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}
	return contacts, nil
}
