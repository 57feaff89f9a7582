// Package sqlinline holds every SQL statement the repositories execute as a
// named constant. Each statement carries a --sql <uuid> audit marker enforced
// by internal/tools/sqllint.
package sqlinline

const QInsertGenerationRequest = `--sql d71bb91e-f7c5-4e59-ac84-d840edb8c74d
insert into generation_request
    (id, session_id, status, garment_keys, model_params, scene_params,
     output_count, template_version, idempotency_key, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, nullif($9, ''), now(), now());
`

const QGetGenerationByID = `--sql aa2944ea-b6dc-4e93-ac30-3aba43a1d423
select id, session_id, status, garment_keys, model_params, scene_params,
       output_count, template_version, coalesce(idempotency_key, ''),
       coalesce(error_message, ''), created_at, updated_at
from generation_request
where id = $1;
`

const QGetGenerationByIdempotencyKey = `--sql bdfa21b0-0a0a-412f-8b51-7686c50f3324
select id, session_id, status, garment_keys, model_params, scene_params,
       output_count, template_version, coalesce(idempotency_key, ''),
       coalesce(error_message, ''), created_at, updated_at
from generation_request
where idempotency_key = $1;
`

const QClaimGenerationForRun = `--sql 73323183-52d8-48d1-9ced-82649c149d91
update generation_request
set status = 'running', updated_at = now()
where id = $1
  and (status = 'queued'
       or (status = 'running' and updated_at < now() - make_interval(secs => $2)))
returning id, session_id, status, garment_keys, model_params, scene_params,
          output_count, template_version, coalesce(idempotency_key, ''),
          coalesce(error_message, ''), created_at, updated_at;
`

const QInsertGenerationOutput = `--sql 7215137b-7141-4da5-815e-3c85ac7703a8
insert into generation_output (id, request_id, storage_key, variation_index, width, height, created_at)
values ($1, $2, $3, $4, nullif($5, 0), nullif($6, 0), now());
`

const QInsertUsageCost = `--sql d93f4153-d510-45e2-bfd9-62f9fde0224d
insert into usage_cost
    (id, request_id, provider, model_name, input_tokens, output_tokens, estimated_usd, duration_ms, recorded_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, now());
`

const QMarkGenerationSucceeded = `--sql 868d4eac-00e5-40fb-86f8-192ab1fe8acb
update generation_request
set status = 'succeeded', error_message = null, updated_at = now()
where id = $1 and status = 'running';
`

const QMarkGenerationFailed = `--sql cff69c6e-ddf9-47e3-8381-c8e10bfaa58d
update generation_request
set status = 'failed', error_message = $2, updated_at = now()
where id = $1;
`

const QListGenerationOutputs = `--sql f7e438d6-006d-48f8-83f6-decf7c6136d6
select id, request_id, storage_key, variation_index, coalesce(width, 0), coalesce(height, 0), created_at
from generation_output
where request_id = $1
order by variation_index;
`

const QGetUsageCost = `--sql 7a07da15-0473-4d05-825f-06adf3f58ece
select id, request_id, provider, model_name, input_tokens, output_tokens, estimated_usd, duration_ms, recorded_at
from usage_cost
where request_id = $1;
`

const QCountGenerationsBySession = `--sql dbb28bad-e944-4d51-9c6a-d7c01b6f4f4f
select count(*) from generation_request where session_id = $1;
`

const QListGenerationsBySession = `--sql dd495032-86df-4656-9ce3-edeb772b5e1a
select id, session_id, status, garment_keys, model_params, scene_params,
       output_count, template_version, coalesce(idempotency_key, ''),
       coalesce(error_message, ''), created_at, updated_at
from generation_request
where session_id = $1
order by created_at desc
limit $2 offset $3;
`

const QDeleteUsageCostByRequest = `--sql f3b90ae2-159b-4051-91b0-2c632dc4d87e
delete from usage_cost where request_id = $1;
`

const QDeleteGenerationOutputsByRequest = `--sql 80dea08a-a466-4aa7-9049-14b8e8f6c204
delete from generation_output where request_id = $1;
`

const QDeleteGenerationRequest = `--sql 8263cafd-1b85-442e-9a9b-f796db4e9455
delete from generation_request where id = $1;
`

const QListStaleGenerations = `--sql 94da6c63-9b38-4555-a5bc-2faafdce0cf5
select id
from generation_request
where (status = 'queued' and updated_at < now() - make_interval(secs => $1))
   or (status = 'running' and updated_at < now() - make_interval(secs => $1))
order by updated_at asc
limit $2;
`
