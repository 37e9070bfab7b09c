// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model declares the authoritative Taskboard schema. The storage
// adapter reconciles every backend against these descriptors at startup,
// so a schema change is made here and nowhere else.
package model // import "github.com/taskboard/taskboard/internal/model"

import "github.com/taskboard/taskboard/internal/db"

// Table names.
const (
	Users          = "users"
	Sessions       = "sessions"
	Projects       = "projects"
	Boards         = "boards"
	Columns        = "columns"
	Tasks          = "tasks"
	Tags           = "tags"
	TaskTags       = "task_tags"
	TaskAssignees  = "task_assignees"
	ProjectMembers = "project_members"
)

func id() db.Column {
	return db.Column{Name: "id", Type: db.UUID, PrimaryKey: true}
}

func createdAt() db.Column {
	return db.Column{Name: "created_at", Type: db.Timestamp, NotNull: true, Default: db.CurrentTimestamp}
}

func ref(name, table, onDelete string, notNull bool) db.Column {
	return db.Column{
		Name:       name,
		Type:       db.UUID,
		NotNull:    notNull,
		References: &db.ForeignKey{Table: table, Column: "id", OnDelete: onDelete},
	}
}

// Tables returns the schema in dependency order: every table appears after
// the tables its foreign keys point at.
func Tables() []db.Table {
	return []db.Table{
		{
			Name: Users,
			Columns: []db.Column{
				id(),
				{Name: "email", Type: db.Text, NotNull: true, Unique: true},
				{Name: "name", Type: db.Text, NotNull: true, Default: ""},
				{Name: "password_hash", Type: db.Text, NotNull: true, Default: ""},
				{Name: "avatar_url", Type: db.Text},
				{Name: "is_admin", Type: db.Boolean, NotNull: true, Default: false},
				createdAt(),
				{Name: "updated_at", Type: db.Timestamp},
			},
		},
		{
			Name: Sessions,
			Columns: []db.Column{
				id(),
				ref("user_id", Users, "CASCADE", true),
				{Name: "token", Type: db.Text, Unique: true},
				{Name: "user_agent", Type: db.Text},
				{Name: "expires_at", Type: db.Timestamp},
				createdAt(),
			},
		},
		{
			Name: Projects,
			Columns: []db.Column{
				id(),
				{Name: "name", Type: db.Text, NotNull: true},
				{Name: "description", Type: db.Text},
				ref("owner_id", Users, "SET NULL", false),
				{Name: "telegram_chat_id", Type: db.Text},
				{Name: "telegram_topic_id", Type: db.Text},
				{Name: "settings", Type: db.JSON},
				createdAt(),
				{Name: "updated_at", Type: db.Timestamp},
			},
		},
		{
			Name: Boards,
			Columns: []db.Column{
				id(),
				ref("project_id", Projects, "CASCADE", true),
				{Name: "name", Type: db.Text, NotNull: true},
				{Name: "position", Type: db.Integer, NotNull: true, Default: 0},
				createdAt(),
			},
		},
		{
			Name: Columns,
			Columns: []db.Column{
				id(),
				ref("board_id", Boards, "CASCADE", true),
				{Name: "name", Type: db.Text, NotNull: true},
				{Name: "position", Type: db.Integer, NotNull: true, Default: 0},
				{Name: "wip_limit", Type: db.Integer},
				createdAt(),
			},
		},
		{
			Name: Tasks,
			Columns: []db.Column{
				id(),
				ref("column_id", Columns, "CASCADE", true),
				{Name: "title", Type: db.Text, NotNull: true},
				{Name: "description", Type: db.Text},
				{Name: "position", Type: db.Integer, NotNull: true, Default: 0},
				{Name: "priority", Type: db.Integer, NotNull: true, Default: 0},
				{Name: "due_at", Type: db.Timestamp},
				{Name: "archived", Type: db.Boolean, NotNull: true, Default: false},
				ref("created_by", Users, "SET NULL", false),
				{Name: "metadata", Type: db.JSON},
				createdAt(),
				{Name: "updated_at", Type: db.Timestamp},
			},
		},
		{
			Name: Tags,
			Columns: []db.Column{
				id(),
				ref("project_id", Projects, "CASCADE", true),
				{Name: "name", Type: db.Text, NotNull: true},
				{Name: "color", Type: db.Text, NotNull: true, Default: ""},
			},
		},
		{
			Name: TaskTags,
			Columns: []db.Column{
				ref("task_id", Tasks, "CASCADE", true),
				ref("tag_id", Tags, "CASCADE", true),
			},
			PrimaryKey: []string{"task_id", "tag_id"},
		},
		{
			Name: TaskAssignees,
			Columns: []db.Column{
				ref("task_id", Tasks, "CASCADE", true),
				ref("user_id", Users, "CASCADE", true),
				{Name: "assigned_at", Type: db.Timestamp, NotNull: true, Default: db.CurrentTimestamp},
			},
			PrimaryKey: []string{"task_id", "user_id"},
		},
		{
			Name: ProjectMembers,
			Columns: []db.Column{
				ref("project_id", Projects, "CASCADE", true),
				ref("user_id", Users, "CASCADE", true),
				{Name: "role", Type: db.Text, NotNull: true, Default: "member"},
				{Name: "joined_at", Type: db.Timestamp, NotNull: true, Default: db.CurrentTimestamp},
			},
			PrimaryKey: []string{"project_id", "user_id"},
		},
	}
}
