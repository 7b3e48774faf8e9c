package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wamux/internal/wa"
)

var contactColumns = []string{"name", "notify", "verifiedName", "imgUrl", "status"}

// ContactStore handles contact rows.
type ContactStore struct {
	store *Store
}

// Upsert inserts the contact or replaces every mutable column of the
// existing row.
func (s *ContactStore) Upsert(c *wa.Contact) error {
	_, err := s.store.Exec(`
		INSERT INTO contacts ("sessionId", "id", "name", "notify", "verifiedName", "imgUrl", "status")
		VALUES (`+placeholders(7)+`)
		ON CONFLICT("sessionId", "id") DO UPDATE SET
			"name" = excluded."name",
			"notify" = excluded."notify",
			"verifiedName" = excluded."verifiedName",
			"imgUrl" = excluded."imgUrl",
			"status" = excluded."status"
	`, c.SessionID, c.ID, c.Name, c.Notify, c.VerifiedName, c.ImgURL, c.Status)
	return err
}

// Update applies a partial column document to one contact.
func (s *ContactStore) Update(sessionID, id string, doc map[string]any) (int64, error) {
	set, args := buildSet(doc, contactColumns)
	if set == "" {
		return 0, nil
	}
	args = append(args, sessionID, id)
	res, err := s.store.Exec(`UPDATE contacts SET `+set+` WHERE "sessionId" = ? AND "id" = ?`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get retrieves one contact.
func (s *ContactStore) Get(sessionID, id string) (*wa.Contact, error) {
	row := s.store.QueryRow(`
		SELECT `+selectContactColumns+` FROM contacts WHERE "sessionId" = ? AND "id" = ?
	`, sessionID, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns a page of contacts plus the unpaged total. A non-empty
// idSuffix restricts the listing to ids on that server, which is how the
// user and broadcast namespaces are told apart.
func (s *ContactStore) List(sessionID, idSuffix string, opts ListOptions) ([]*wa.Contact, int, error) {
	where := `WHERE "sessionId" = ?`
	whereArgs := []any{sessionID}
	if idSuffix != "" {
		where += ` AND "id" LIKE ?`
		whereArgs = append(whereArgs, "%"+idSuffix)
	}

	var total int
	if err := s.store.QueryRow(`SELECT COUNT(*) FROM contacts `+where, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectContactColumns + ` FROM contacts ` + where +
		opts.orderClause(contactColumns, "pkId")
	limit, limitArgs := opts.limitClause()
	query += limit
	args := append(whereArgs, limitArgs...)

	rows, err := s.store.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := make([]*wa.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	return contacts, total, rows.Err()
}

// DeleteAllExcept removes the session's contacts whose ids are not in
// keep. A full snapshot replaces the stored set with exactly its own.
func (s *ContactStore) DeleteAllExcept(sessionID string, keep []string) error {
	if len(keep) == 0 {
		return s.DeleteAll(sessionID)
	}
	args := make([]any, 0, len(keep)+1)
	args = append(args, sessionID)
	for _, id := range keep {
		args = append(args, id)
	}
	_, err := s.store.Exec(`
		DELETE FROM contacts WHERE "sessionId" = ? AND "id" NOT IN (`+placeholders(len(keep))+`)
	`, args...)
	return err
}

// Delete removes one contact row.
func (s *ContactStore) Delete(sessionID, id string) error {
	_, err := s.store.Exec(`DELETE FROM contacts WHERE "sessionId" = ? AND "id" = ?`, sessionID, id)
	return err
}

// DeleteAll removes every contact belonging to the session.
func (s *ContactStore) DeleteAll(sessionID string) error {
	_, err := s.store.Exec(`DELETE FROM contacts WHERE "sessionId" = ?`, sessionID)
	return err
}

var selectContactColumns = `"sessionId", "id", "` + strings.Join(contactColumns, `", "`) + `"`

func scanContact(row rowScanner) (*wa.Contact, error) {
	var c wa.Contact
	var name, notify, verifiedName, imgURL, status sql.NullString

	err := row.Scan(&c.SessionID, &c.ID, &name, &notify, &verifiedName, &imgURL, &status)
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	c.Name = ptrString(name)
	c.Notify = ptrString(notify)
	c.VerifiedName = ptrString(verifiedName)
	c.ImgURL = ptrString(imgURL)
	c.Status = ptrString(status)
	return &c, nil
}
