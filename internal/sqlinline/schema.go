package sqlinline

// SchemaStatements create the orchestrator tables. Each statement is
// idempotent and runs in order on API start.
var SchemaStatements = []string{
	QCreateUsers,
	QCreateGenerationJobs,
	QCreateGenerationJobsStatusIndex,
	QCreateGenerationJobsRequesterIndex,
	QCreateCreditTransactions,
	QCreateCreditRefundIndex,
	QCreateCreditHoldIndex,
	QCreateCreditUserIndex,
	QCreateIntegrationTokens,
}

const QCreateUsers = `--sql 6c2e5936-4cbd-42a0-a456-8877104ecbca
create table if not exists users (
    id text primary key,
    email text unique,
    role text not null default 'user' check (role in ('user', 'admin')),
    plan text not null default 'free' check (plan in ('free', 'pro')),
    balance bigint not null default 0 constraint users_balance_non_negative check (balance >= 0),
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QCreateGenerationJobs = `--sql 5ef08c47-32bb-49ce-af57-715a1893882e
create table if not exists generation_jobs (
    id uuid primary key,
    provider_task_id text,
    status text not null check (status in ('QUEUED', 'PROCESSING', 'COMPLETED', 'FAILED')),
    progress int not null default 0 check (progress between 0 and 100),
    requester_id text not null references users (id),
    input_image_url text not null,
    prompt_template jsonb not null,
    video_url text,
    error_message text,
    credit_hold_amount bigint not null check (credit_hold_amount >= 0),
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    constraint generation_jobs_provider_task_id_key unique (provider_task_id),
    constraint generation_jobs_artifact_consistent check (
        (status = 'COMPLETED' and video_url is not null and error_message is null)
        or (status = 'FAILED' and error_message is not null and video_url is null)
        or (status in ('QUEUED', 'PROCESSING') and video_url is null and error_message is null)
    )
);
`

const QCreateGenerationJobsStatusIndex = `--sql e9d7591c-1990-4c0c-806b-5ce9ef884413
create index if not exists generation_jobs_status_updated_idx
    on generation_jobs (status, updated_at);
`

const QCreateGenerationJobsRequesterIndex = `--sql e32a9271-1ab8-4efd-bf4e-c2abf003229e
create index if not exists generation_jobs_requester_idx
    on generation_jobs (requester_id, created_at desc);
`

const QCreateCreditTransactions = `--sql 4203bd08-4185-47a0-82a8-17ac9b5a4350
create table if not exists credit_transactions (
    id uuid primary key,
    user_id text not null references users (id),
    type text not null check (type in ('DEBIT', 'CREDIT')),
    reason text not null check (reason in ('HOLD', 'REFUND', 'GRANT')),
    amount bigint not null check (amount > 0),
    job_id uuid references generation_jobs (id) deferrable initially deferred,
    created_at timestamptz not null default now()
);
`

const QCreateCreditRefundIndex = `--sql b7c36906-fd87-4cdf-89c3-bd0da04a858f
create unique index if not exists credit_transactions_refund_job_uniq
    on credit_transactions (job_id) where reason = 'REFUND';
`

const QCreateCreditHoldIndex = `--sql dbb34f0e-23c6-4201-8cef-70643293f57f
create unique index if not exists credit_transactions_hold_job_uniq
    on credit_transactions (job_id) where reason = 'HOLD';
`

const QCreateCreditUserIndex = `--sql fe6ff5be-dcce-4b72-886b-8c866854da91
create index if not exists credit_transactions_user_idx
    on credit_transactions (user_id, created_at desc);
`

const QCreateIntegrationTokens = `--sql c6371f3b-a3fe-4a78-9552-500b245e6486
create table if not exists integration_tokens (
    id uuid primary key default gen_random_uuid(),
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
