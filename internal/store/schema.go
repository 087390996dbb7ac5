package store

// schemaSQL creates the budgeting schema. No foreign key cascades: the services
// delete children explicitly and in dependency order.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS city (
    city_id      BIGSERIAL PRIMARY KEY,
    name         VARCHAR(100) NOT NULL,
    province     VARCHAR(100) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS category (
    category_id  BIGSERIAL PRIMARY KEY,
    name         VARCHAR(50) NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    user_id      BIGSERIAL PRIMARY KEY,
    name         VARCHAR(50) NOT NULL,
    email        VARCHAR(100) NOT NULL UNIQUE,
    role         VARCHAR(50) NOT NULL,
    city_id      BIGINT REFERENCES city(city_id),
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    invited_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS budget_request (
    request_id   BIGSERIAL PRIMARY KEY,
    city_id      BIGINT NOT NULL REFERENCES city(city_id),
    requester_id BIGINT REFERENCES users(user_id),
    recipient_id BIGINT REFERENCES users(user_id),
    month        DATE NOT NULL,
    description  TEXT,
    status       VARCHAR(10) NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS requested_event (
    req_event_id BIGSERIAL PRIMARY KEY,
    request_id   BIGINT NOT NULL REFERENCES budget_request(request_id),
    name         VARCHAR(100),
    event_date   DATE,
    total_amount NUMERIC(10,2),
    notes        TEXT
);

CREATE TABLE IF NOT EXISTS requested_break_down_line (
    line_id      BIGSERIAL PRIMARY KEY,
    req_event_id BIGINT NOT NULL REFERENCES requested_event(req_event_id),
    category_id  BIGINT NOT NULL REFERENCES category(category_id),
    description  TEXT,
    amount       NUMERIC(10,2) NOT NULL CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS approval (
    approval_id  BIGSERIAL PRIMARY KEY,
    request_id   BIGINT NOT NULL REFERENCES budget_request(request_id),
    approver_id  BIGINT NOT NULL REFERENCES users(user_id),
    decision     VARCHAR(20) NOT NULL,
    note         TEXT,
    decided_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS event (
    event_id        BIGSERIAL PRIMARY KEY,
    city_id         BIGINT NOT NULL REFERENCES city(city_id),
    name            VARCHAR(50),
    event_date      DATE,
    attendees_count INTEGER NOT NULL DEFAULT 0,
    prepared_by     BIGINT NOT NULL REFERENCES users(user_id)
);

CREATE TABLE IF NOT EXISTS expense (
    expense_id        BIGSERIAL PRIMARY KEY,
    event_id          BIGINT NOT NULL REFERENCES event(event_id),
    category_id       BIGINT NOT NULL REFERENCES category(category_id),
    vendor            VARCHAR(100) NOT NULL,
    item_desc         VARCHAR(100) NOT NULL DEFAULT '',
    amount_before_tax NUMERIC(10,2) NOT NULL DEFAULT 0,
    hst               NUMERIC(10,2) NOT NULL DEFAULT 0,
    round_off         NUMERIC(10,2),
    total_amount      NUMERIC(10,2) NOT NULL,
    receipt_number    VARCHAR(50),
    spent_at          VARCHAR(100) NOT NULL DEFAULT '',
    volunteer_name    VARCHAR(100) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS receipt (
    receipt_id   BIGSERIAL PRIMARY KEY,
    expense_id   BIGINT NOT NULL UNIQUE REFERENCES expense(expense_id),
    file_path    VARCHAR(100),
    uploaded_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS petty_cash_statement (
    pcs_id          BIGSERIAL PRIMARY KEY,
    month           VARCHAR(20) NOT NULL,
    opening_balance NUMERIC(10,2) NOT NULL,
    total_spent     NUMERIC(10,2) NOT NULL DEFAULT 0,
    closing_balance NUMERIC(10,2) NOT NULL,
    carried_forward NUMERIC(10,2) NOT NULL DEFAULT 0,
    cash_in_hand    NUMERIC(10,2) NOT NULL DEFAULT 0,
    city_id         BIGINT NOT NULL REFERENCES city(city_id),
    prepared_by     BIGINT NOT NULL REFERENCES users(user_id),
    approved_by     BIGINT REFERENCES users(user_id)
);

CREATE TABLE IF NOT EXISTS petty_cash_expense (
    pcx_id                BIGSERIAL PRIMARY KEY,
    pcs_id                BIGINT NOT NULL REFERENCES petty_cash_statement(pcs_id),
    event_id              BIGINT NOT NULL REFERENCES event(event_id),
    nature_of_expense     VARCHAR(100) NOT NULL,
    vendor                VARCHAR(100) NOT NULL DEFAULT '',
    amount_before_tax     NUMERIC(10,2) NOT NULL DEFAULT 0,
    hst                   NUMERIC(10,2) NOT NULL DEFAULT 0,
    round_off             NUMERIC(10,2),
    total_amount          NUMERIC(10,2) NOT NULL,
    receipt_number        VARCHAR(50),
    spent_at              VARCHAR(100) NOT NULL DEFAULT '',
    volunteer_name        VARCHAR(100) NOT NULL DEFAULT '',
    balance_on_hand_after NUMERIC(10,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    key             VARCHAR(255) PRIMARY KEY,
    request_hash    VARCHAR(64) NOT NULL,
    status          VARCHAR(20) NOT NULL,
    response_status INTEGER,
    response_body   JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_budget_request_requester ON budget_request(requester_id, created_at);
CREATE INDEX IF NOT EXISTS idx_budget_request_status ON budget_request(status, month);
CREATE INDEX IF NOT EXISTS idx_requested_event_request ON requested_event(request_id);
CREATE INDEX IF NOT EXISTS idx_break_down_line_event ON requested_break_down_line(req_event_id);
CREATE INDEX IF NOT EXISTS idx_approval_request ON approval(request_id);
CREATE INDEX IF NOT EXISTS idx_pcx_statement ON petty_cash_expense(pcs_id);
`
