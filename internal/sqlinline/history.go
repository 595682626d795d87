package sqlinline

// History queries take the sanitized table identifier as their only format
// verb; the table name is configurable per deployment.

const QCreateHistoryTable = `--sql 3f1d6a52-7c4b-4e0e-9a51-2b8f0c7d91e4
create table if not exists %s (
  id bigserial primary key,
  wallet_address text not null,
  ipfs_url text not null,
  prompt text not null,
  created_at timestamptz not null default now()
);
`

const QCreateHistoryIndex = `--sql 8a0e2c9b-5d14-4b7f-8e63-1c4a9f2d7b05
create index if not exists %s on %s (wallet_address, created_at desc);
`

const QInsertHistory = `--sql c2b7e4f1-96a3-4d58-b0e2-7f15a8c3d946
insert into %s (wallet_address, ipfs_url, prompt, created_at)
values ($1::text, $2::text, $3::text, $4::timestamptz)
returning id, wallet_address, ipfs_url, prompt, created_at;
`

const QListHistoryByWallet = `--sql 5e93a0d7-2f6c-4b1a-9c84-d0b7e6f3a215
select id, wallet_address, ipfs_url, prompt, created_at
from %s
where wallet_address = $1::text
order by created_at desc, id desc
limit $2::int;
`

const QCountHistory = `--sql 71f4c8b2-0a9e-4d3b-a6c5-e28d1b7f9043
select count(*) from %s;
`
