package sqlinline

const QUpsertUser = `--sql 8fe3ce9b-3904-446d-9d24-861de1b89512
insert into users (id, email, role, plan, balance, created_at, updated_at)
values ($1::text, nullif($2::text, ''), 'user', 'free', 0, now(), now())
on conflict (id) do update set
    email = coalesce(excluded.email, users.email),
    updated_at = now()
returning id, coalesce(email, ''), role, plan, balance, created_at, updated_at;
`

const QSelectUserByID = `--sql cf2b9140-feb4-496a-80d9-537f5e8d5a97
select id, coalesce(email, ''), role, plan, balance, created_at, updated_at
from users
where id = $1::text;
`

const QUpdateUserPlan = `--sql 885b3600-a773-4a40-96ef-7784f91182b7
update users
set plan = $2::text,
    updated_at = now()
where id = $1::text
returning id;
`

const QUpdateUserRole = `--sql 9b76cf4e-3a1d-497e-b3a9-109e86bf7a78
update users
set role = $2::text,
    updated_at = now()
where id = $1::text
returning id;
`
