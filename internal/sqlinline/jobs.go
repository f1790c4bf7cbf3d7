package sqlinline

const QInsertJob = `--sql ec216174-bdfb-459b-aa45-a19fb3669080
insert into generation_jobs (
    id, status, progress, requester_id, input_image_url,
    prompt_template, credit_hold_amount, created_at, updated_at
)
values ($1::uuid, 'QUEUED', 0, $2::text, $3::text, $4::jsonb, $5::bigint, now(), now())
returning created_at, updated_at;
`

const QSelectJobByID = `--sql 78fbce97-1892-4844-aec6-595615c79b5d
select id::text, provider_task_id, status, progress, requester_id, input_image_url,
       prompt_template, video_url, error_message, credit_hold_amount, created_at, updated_at
from generation_jobs
where id = $1::uuid;
`

const QSelectJobByTaskID = `--sql df549a25-fd1e-4ce0-a79a-9dbf5d0d4a6d
select id::text, provider_task_id, status, progress, requester_id, input_image_url,
       prompt_template, video_url, error_message, credit_hold_amount, created_at, updated_at
from generation_jobs
where provider_task_id = $1::text;
`

const QMarkJobProcessing = `--sql 2819d29c-8dc1-4c52-b723-14cbfa840c0e
update generation_jobs
set status = 'PROCESSING',
    provider_task_id = $2::text,
    updated_at = now()
where id = $1::uuid
  and status = 'QUEUED'
returning id::text;
`

const QUpdateJobProgress = `--sql 57f5a8eb-fbb4-40b2-9162-e77f4d3f60c8
update generation_jobs
set progress = $2::int,
    updated_at = now()
where id = $1::uuid
  and status in ('QUEUED', 'PROCESSING')
  and progress < $2::int
returning id::text;
`

const QCompleteJob = `--sql e65a1a55-4768-4f19-b3f3-8e1061af755b
update generation_jobs
set status = 'COMPLETED',
    video_url = $2::text,
    progress = 100,
    updated_at = now()
where id = $1::uuid
  and status in ('QUEUED', 'PROCESSING')
returning id::text;
`

const QFailJob = `--sql 82751598-ccc6-4f01-9997-b34bdf8030d8
update generation_jobs
set status = 'FAILED',
    error_message = $2::text,
    updated_at = now()
where id = $1::uuid
  and status in ('QUEUED', 'PROCESSING')
returning id::text;
`

const QListStaleJobs = `--sql aeed2a8c-3e81-4e8b-ac99-39b06b62e2c3
select id::text, provider_task_id, status, progress, requester_id, input_image_url,
       prompt_template, video_url, error_message, credit_hold_amount, created_at, updated_at
from generation_jobs
where status = $1::text
  and updated_at < $2::timestamptz
order by updated_at asc
limit $3::int;
`

const QListUnsettledFailures = `--sql 87d5bfe0-3f89-43f5-92c4-035def34c2c1
select j.id::text, j.provider_task_id, j.status, j.progress, j.requester_id, j.input_image_url,
       j.prompt_template, j.video_url, j.error_message, j.credit_hold_amount, j.created_at, j.updated_at
from generation_jobs j
where j.status = 'FAILED'
  and exists (
      select 1 from credit_transactions h
      where h.job_id = j.id and h.reason = 'HOLD'
  )
  and not exists (
      select 1 from credit_transactions r
      where r.job_id = j.id and r.reason = 'REFUND'
  )
order by j.updated_at asc
limit $1::int;
`
