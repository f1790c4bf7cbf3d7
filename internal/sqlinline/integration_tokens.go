package sqlinline

const QSelectIntegrationToken = `--sql 37dfa952-c4bc-4fc3-8298-79dff56e9eab
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql bd846cc5-9e3c-478b-b895-a623931ec28c
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql d0f7d296-8b28-41b7-bf17-0668ab8915e2
delete from integration_tokens
where provider = $1::text;
`
