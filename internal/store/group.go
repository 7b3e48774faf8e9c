package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wamux/internal/wa"
)

var groupColumns = []string{
	"owner", "subject", "subjectOwner", "subjectTime", "creation", "desc",
	"descOwner", "restrict", "announce", "size", "participants",
	"ephemeralDuration", "inviteCode",
}

// GroupStore handles group metadata rows.
type GroupStore struct {
	store *Store
}

// Upsert inserts the group or replaces every mutable column of the
// existing row. The participant list is serialized whole.
func (s *GroupStore) Upsert(g *wa.GroupMetadata) error {
	participants := g.Participants
	if participants == nil {
		participants = []wa.Participant{}
	}
	_, err := s.store.Exec(`
		INSERT INTO groups (
			"sessionId", "id", "owner", "subject", "subjectOwner", "subjectTime",
			"creation", "desc", "descOwner", "restrict", "announce", "size",
			"participants", "ephemeralDuration", "inviteCode"
		) VALUES (`+placeholders(15)+`)
		ON CONFLICT("sessionId", "id") DO UPDATE SET
			"owner" = excluded."owner",
			"subject" = excluded."subject",
			"subjectOwner" = excluded."subjectOwner",
			"subjectTime" = excluded."subjectTime",
			"creation" = excluded."creation",
			"desc" = excluded."desc",
			"descOwner" = excluded."descOwner",
			"restrict" = excluded."restrict",
			"announce" = excluded."announce",
			"size" = excluded."size",
			"participants" = excluded."participants",
			"ephemeralDuration" = excluded."ephemeralDuration",
			"inviteCode" = excluded."inviteCode"
	`,
		g.SessionID, g.ID, g.Owner, g.Subject, g.SubjectOwner, g.SubjectTime,
		g.Creation, g.Desc, g.DescOwner, g.Restrict, g.Announce, g.Size,
		jsonText(participants), g.EphemeralDuration, g.InviteCode,
	)
	return err
}

// Update applies a partial column document to one group.
func (s *GroupStore) Update(sessionID, id string, doc map[string]any) (int64, error) {
	set, args := buildSet(doc, groupColumns)
	if set == "" {
		return 0, nil
	}
	args = append(args, sessionID, id)
	res, err := s.store.Exec(`UPDATE groups SET `+set+` WHERE "sessionId" = ? AND "id" = ?`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetParticipants replaces the stored member list.
func (s *GroupStore) SetParticipants(sessionID, id string, participants []wa.Participant) error {
	if participants == nil {
		participants = []wa.Participant{}
	}
	_, err := s.store.Exec(`UPDATE groups SET "participants" = ? WHERE "sessionId" = ? AND "id" = ?`,
		jsonText(participants), sessionID, id)
	return err
}

// Get retrieves one group.
func (s *GroupStore) Get(sessionID, id string) (*wa.GroupMetadata, error) {
	row := s.store.QueryRow(`
		SELECT `+selectGroupColumns+` FROM groups WHERE "sessionId" = ? AND "id" = ?
	`, sessionID, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// List returns a page of groups plus the unpaged total.
func (s *GroupStore) List(sessionID string, opts ListOptions) ([]*wa.GroupMetadata, int, error) {
	var total int
	if err := s.store.QueryRow(`SELECT COUNT(*) FROM groups WHERE "sessionId" = ?`,
		sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + selectGroupColumns + ` FROM groups WHERE "sessionId" = ?` +
		opts.orderClause(groupColumns, "pkId")
	args := []any{sessionID}
	limit, limitArgs := opts.limitClause()
	query += limit
	args = append(args, limitArgs...)

	rows, err := s.store.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	groups := make([]*wa.GroupMetadata, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	return groups, total, rows.Err()
}

// Delete removes one group row.
func (s *GroupStore) Delete(sessionID, id string) error {
	_, err := s.store.Exec(`DELETE FROM groups WHERE "sessionId" = ? AND "id" = ?`, sessionID, id)
	return err
}

// DeleteAll removes every group belonging to the session.
func (s *GroupStore) DeleteAll(sessionID string) error {
	_, err := s.store.Exec(`DELETE FROM groups WHERE "sessionId" = ?`, sessionID)
	return err
}

var selectGroupColumns = `"sessionId", "id", "` + strings.Join(groupColumns, `", "`) + `"`

func scanGroup(row rowScanner) (*wa.GroupMetadata, error) {
	var g wa.GroupMetadata
	var owner, subjectOwner, desc, descOwner, inviteCode sql.NullString
	var subjectTime, creation, size, ephemeralDuration sql.NullInt64
	var restrict, announce sql.NullBool
	var participants string

	err := row.Scan(
		&g.SessionID, &g.ID, &owner, &g.Subject, &subjectOwner, &subjectTime,
		&creation, &desc, &descOwner, &restrict, &announce, &size,
		&participants, &ephemeralDuration, &inviteCode,
	)
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}

	g.Owner = ptrString(owner)
	g.SubjectOwner = ptrString(subjectOwner)
	g.SubjectTime = ptrInt64(subjectTime)
	g.Creation = ptrInt64(creation)
	g.Desc = ptrString(desc)
	g.DescOwner = ptrString(descOwner)
	g.Restrict = ptrBool(restrict)
	g.Announce = ptrBool(announce)
	g.Size = ptrInt64(size)
	g.EphemeralDuration = ptrInt64(ephemeralDuration)
	g.InviteCode = ptrString(inviteCode)
	g.Participants = []wa.Participant{}
	if participants != "" {
		if err := json.Unmarshal([]byte(participants), &g.Participants); err != nil {
			return nil, fmt.Errorf("decode group participants: %w", err)
		}
	}
	return &g, nil
}
