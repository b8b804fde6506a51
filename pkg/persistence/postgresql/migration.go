package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE process_instances (
				id VARCHAR(255) PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL,
				state VARCHAR(50) NOT NULL CHECK (state IN ('active', 'ended')),
				business_key VARCHAR(255) NOT NULL DEFAULT '',
				revision BIGINT NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_process_instances_definition_id ON process_instances(definition_id);

			CREATE TABLE executions (
				process_instance_id VARCHAR(255) NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				parent_id VARCHAR(255) NOT NULL DEFAULT '',
				definition_id VARCHAR(255) NOT NULL,
				activity_id VARCHAR(255) NOT NULL DEFAULT '',
				variable_scope_id VARCHAR(255) NOT NULL,
				is_scope BOOLEAN NOT NULL DEFAULT false,
				PRIMARY KEY (process_instance_id, id)
			);

			CREATE TABLE activity_instances (
				process_instance_id VARCHAR(255) NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				activity_id VARCHAR(255) NOT NULL,
				parent_id VARCHAR(255) NOT NULL DEFAULT '',
				execution_id VARCHAR(255) NOT NULL,
				PRIMARY KEY (process_instance_id, id)
			);

			CREATE TABLE event_subscriptions (
				process_instance_id VARCHAR(255) NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				event_name VARCHAR(255) NOT NULL DEFAULT '',
				activity_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (process_instance_id, id)
			);

			CREATE INDEX idx_event_subscriptions_event ON event_subscriptions(kind, event_name);

			CREATE TABLE jobs (
				process_instance_id VARCHAR(255) NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				kind VARCHAR(50) NOT NULL,
				due_time TIMESTAMP WITH TIME ZONE NOT NULL,
				activity_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				retries INT NOT NULL DEFAULT 0,
				PRIMARY KEY (process_instance_id, id)
			);

			CREATE INDEX idx_jobs_due_time ON jobs(due_time);

			CREATE TABLE variables (
				process_instance_id VARCHAR(255) NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				scope_id VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (process_instance_id, scope_id)
			);
		`,
	}
}
