package sqlite

import "github.com/coresight/coresight/internal/storage/migrations"

// Schema returns the migration set for the CoreSight database.
func Schema() *migrations.Manager {
	return migrations.NewManager(
		migrations.Migration{
			Version:     1,
			Description: "Core entities",
			Up:          coreSchema,
			Down: `
				DROP TABLE work_sessions;
				DROP TABLE commits;
				DROP TABLE issues;
				DROP TABLE tasks;
				DROP TABLE projects;
				DROP TABLE users;
			`,
		},
		migrations.Migration{
			Version:     2,
			Description: "Embedding cache",
			Up: `
				CREATE TABLE embedding_cache (
					key TEXT PRIMARY KEY,
					model TEXT NOT NULL,
					dimensions INTEGER NOT NULL,
					vector BLOB NOT NULL,
					created_at INTEGER NOT NULL
				);
			`,
			Down: `DROP TABLE embedding_cache;`,
		},
		migrations.Migration{
			Version:     3,
			Description: "Job requisitions",
			Up: `
				CREATE TABLE job_requisitions (
					id TEXT PRIMARY KEY,
					task_id TEXT NOT NULL,
					suggested_title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					required_skills TEXT NOT NULL DEFAULT '[]',
					missing_skills TEXT NOT NULL DEFAULT '[]',
					required_experience_years INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);
				CREATE INDEX idx_job_requisitions_task ON job_requisitions(task_id);
				CREATE INDEX idx_job_requisitions_status ON job_requisitions(status);
			`,
			Down: `DROP TABLE job_requisitions;`,
		},
	)
}

const coreSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	skills TEXT NOT NULL DEFAULT '[]',
	hourly_rate REAL NOT NULL DEFAULT 0,
	work_profile_text TEXT NOT NULL DEFAULT '',
	profile_embedding TEXT,
	skill_embedding TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	total_budget REAL NOT NULL DEFAULT 0,
	contributor_ids TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE TABLE tasks (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	sprint_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	description_embedding TEXT,
	required_skills TEXT NOT NULL DEFAULT '[]',
	skill_embedding TEXT,
	status TEXT NOT NULL DEFAULT 'todo',
	priority TEXT NOT NULL DEFAULT 'medium',
	assignee_ids TEXT NOT NULL DEFAULT '[]',
	requires_job_posting INTEGER NOT NULL DEFAULT 0,
	activity_log TEXT NOT NULL DEFAULT '[]',
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX idx_tasks_status ON tasks(status);
CREATE INDEX idx_tasks_project ON tasks(project_id);

CREATE TABLE issues (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	description_embedding TEXT,
	required_skills TEXT NOT NULL DEFAULT '[]',
	skill_embedding TEXT,
	priority TEXT NOT NULL DEFAULT '',
	is_duplicate INTEGER NOT NULL DEFAULT 0,
	parent_task_id TEXT NOT NULL DEFAULT '',
	task_id TEXT NOT NULL DEFAULT '',
	resolution TEXT NOT NULL DEFAULT 'pending',
	confidence REAL NOT NULL DEFAULT 0,
	reasoning TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX idx_issues_resolution ON issues(resolution);

CREATE TABLE commits (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	diff_summary TEXT NOT NULL DEFAULT '',
	repository TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	author_email TEXT NOT NULL DEFAULT '',
	author_name TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	files_changed INTEGER NOT NULL DEFAULT 0,
	lines_added INTEGER NOT NULL DEFAULT 0,
	lines_deleted INTEGER NOT NULL DEFAULT 0,
	lines_modified INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	extracted_skills TEXT NOT NULL DEFAULT '[]',
	impact TEXT NOT NULL DEFAULT '',
	summary_embedding TEXT,
	linked_task_id TEXT NOT NULL DEFAULT '',
	triggered_profile_update INTEGER NOT NULL DEFAULT 0,
	timestamp INTEGER NOT NULL
);
CREATE INDEX idx_commits_user ON commits(user_id, timestamp);
CREATE INDEX idx_commits_task ON commits(linked_task_id);

CREATE TABLE work_sessions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	CHECK (end_time IS NULL OR end_time > start_time)
);
CREATE INDEX idx_work_sessions_user ON work_sessions(user_id, start_time);
CREATE INDEX idx_work_sessions_task ON work_sessions(task_id);
`
