package sqlinline

// QReserveCredits debits the hold and lowers the cached balance in one
// statement. No row comes back when the balance is too low.
const QReserveCredits = `--sql 68d7d6e5-4dd2-4e16-a765-89e1318e8801
with debited as (
    update users
    set balance = balance - $3::bigint,
        updated_at = now()
    where id = $1::text
      and balance >= $3::bigint
    returning id, balance
),
held as (
    insert into credit_transactions (id, user_id, type, reason, amount, job_id, created_at)
    select gen_random_uuid(), d.id, 'DEBIT', 'HOLD', $3::bigint, $2::uuid, now()
    from debited d
    returning id
)
select d.balance, (select count(*) from held)
from debited d;
`

// QRefundHold credits back the hold for a job at most once. The partial
// unique index on REFUND rows turns a second attempt into a no-op.
const QRefundHold = `--sql 81f53d6f-b9b9-4855-9e42-69c44ceaffa4
with hold as (
    select user_id, amount
    from credit_transactions
    where job_id = $1::uuid
      and reason = 'HOLD'
),
refunded as (
    insert into credit_transactions (id, user_id, type, reason, amount, job_id, created_at)
    select gen_random_uuid(), h.user_id, 'CREDIT', 'REFUND', h.amount, $1::uuid, now()
    from hold h
    on conflict (job_id) where reason = 'REFUND' do nothing
    returning user_id, amount
),
credited as (
    update users u
    set balance = u.balance + r.amount,
        updated_at = now()
    from refunded r
    where u.id = r.user_id
    returning u.id
)
select count(*) from credited;
`

const QGrantCredits = `--sql bef9a9cb-05e1-44f4-81fa-6750bde19380
with credited as (
    update users
    set balance = balance + $2::bigint,
        updated_at = now()
    where id = $1::text
    returning id, balance
),
granted as (
    insert into credit_transactions (id, user_id, type, reason, amount, job_id, created_at)
    select gen_random_uuid(), c.id, 'CREDIT', 'GRANT', $2::bigint, null, now()
    from credited c
    returning id
)
select c.balance, (select count(*) from granted)
from credited c;
`

const QSelectBalance = `--sql 0b3b9337-b43e-4d19-853a-a84ec247ff8c
select balance
from users
where id = $1::text;
`

const QListTransactions = `--sql 2d51322f-0f3d-40d9-b1f7-478f7ee374e2
select id::text, user_id, type, reason, amount, job_id::text, created_at
from credit_transactions
where user_id = $1::text
order by created_at desc, id desc
limit $2::int;
`
