package store

// schema contains the gateway table definitions. Column names are
// camelCase and quoted so they line up with the entity JSON field names;
// the dynamic update path maps field names to columns one to one.
//
// Tables:
//   - sessions - credential rows, one per (session, key id)
//   - chats    - per-conversation metadata
//   - contacts - peer profiles
//   - groups   - group metadata with a serialized participant list
//   - messages - message payloads plus receipt and reaction lists
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    "pkId" INTEGER PRIMARY KEY AUTOINCREMENT,
    "sessionId" TEXT NOT NULL,
    "id" TEXT NOT NULL,
    "data" TEXT NOT NULL,
    UNIQUE ("sessionId", "id")
);
CREATE INDEX IF NOT EXISTS idx_sessions_session ON sessions("sessionId");

CREATE TABLE IF NOT EXISTS chats (
    "pkId" INTEGER PRIMARY KEY AUTOINCREMENT,
    "sessionId" TEXT NOT NULL,
    "id" TEXT NOT NULL,
    "archived" INTEGER,
    "conversationTimestamp" INTEGER,
    "description" TEXT,
    "displayName" TEXT,
    "ephemeralExpiration" INTEGER,
    "ephemeralSettingTimestamp" INTEGER,
    "lastMsgTimestamp" INTEGER,
    "markedAsUnread" INTEGER,
    "muteEndTime" INTEGER,
    "name" TEXT,
    "pinned" INTEGER,
    "readOnly" INTEGER,
    "unreadCount" INTEGER,
    "unreadMentionCount" INTEGER,
    "participant" TEXT,
    UNIQUE ("sessionId", "id")
);
CREATE INDEX IF NOT EXISTS idx_chats_session ON chats("sessionId");

CREATE TABLE IF NOT EXISTS contacts (
    "pkId" INTEGER PRIMARY KEY AUTOINCREMENT,
    "sessionId" TEXT NOT NULL,
    "id" TEXT NOT NULL,
    "name" TEXT,
    "notify" TEXT,
    "verifiedName" TEXT,
    "imgUrl" TEXT,
    "status" TEXT,
    UNIQUE ("sessionId", "id")
);
CREATE INDEX IF NOT EXISTS idx_contacts_session ON contacts("sessionId");

CREATE TABLE IF NOT EXISTS groups (
    "pkId" INTEGER PRIMARY KEY AUTOINCREMENT,
    "sessionId" TEXT NOT NULL,
    "id" TEXT NOT NULL,
    "owner" TEXT,
    "subject" TEXT NOT NULL,
    "subjectOwner" TEXT,
    "subjectTime" INTEGER,
    "creation" INTEGER,
    "desc" TEXT,
    "descOwner" TEXT,
    "restrict" INTEGER,
    "announce" INTEGER,
    "size" INTEGER,
    "participants" TEXT NOT NULL,
    "ephemeralDuration" INTEGER,
    "inviteCode" TEXT,
    UNIQUE ("sessionId", "id")
);
CREATE INDEX IF NOT EXISTS idx_groups_session ON groups("sessionId");

CREATE TABLE IF NOT EXISTS messages (
    "pkId" INTEGER PRIMARY KEY AUTOINCREMENT,
    "sessionId" TEXT NOT NULL,
    "remoteJid" TEXT NOT NULL,
    "id" TEXT NOT NULL,
    "key" TEXT NOT NULL,
    "message" TEXT,
    "messageTimestamp" INTEGER,
    "participant" TEXT,
    "pushName" TEXT,
    "broadcast" INTEGER,
    "status" INTEGER,
    "starred" INTEGER,
    "messageStubType" INTEGER,
    "userReceipt" TEXT,
    "reactions" TEXT,
    UNIQUE ("sessionId", "remoteJid", "id")
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages("sessionId");
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages("sessionId", "remoteJid");
`
