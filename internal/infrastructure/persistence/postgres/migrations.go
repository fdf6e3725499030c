// Package postgres implements the PostgreSQL persistence layer for the SGN
// Grade Hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE RUNS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create runs table
-- Version: 001

CREATE TABLE IF NOT EXISTS runs (
    id UUID PRIMARY KEY,
    kind VARCHAR(30) NOT NULL,
    classroom VARCHAR(20) NOT NULL,
    period VARCHAR(5) NOT NULL,
    status VARCHAR(20) NOT NULL,
    tally TEXT NOT NULL DEFAULT '',
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    remedial INTEGER NOT NULL DEFAULT 0,
    classification VARCHAR(40) NOT NULL DEFAULT '',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_kind CHECK (kind IN ('concepts', 'concepts_remedial', 'opinions')),
    CONSTRAINT valid_status CHECK (status IN ('running', 'completed', 'failed', 'cancelled')),
    CONSTRAINT valid_period CHECK (period IN ('TR1', 'TR2', 'TR3', 'CF')),
    CONSTRAINT valid_counts CHECK (succeeded >= 0 AND failed >= 0 AND skipped >= 0 AND remedial >= 0)
);

-- Indexes for the history listing
CREATE INDEX IF NOT EXISTS idx_runs_classroom ON runs(classroom, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status) WHERE status = 'running';
`

const migration001Down = `
DROP TABLE IF EXISTS runs;
`
