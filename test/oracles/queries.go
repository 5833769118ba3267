package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_immutable_never_pending",
			SQL: `SELECT agreement_id, status FROM agreements
                  WHERE is_immutable AND status = 'PENDING'`,
		},
		{
			Name: "O2_locked_states_immutable",
			SQL: `SELECT agreement_id, status FROM agreements
                  WHERE status IN ('CONFIRMED', 'PAID') AND NOT is_immutable`,
		},
		{
			Name: "O3_confirmed_at_present",
			SQL: `SELECT agreement_id, status FROM agreements
                  WHERE status IN ('CONFIRMED', 'PAID') AND confirmed_at IS NULL`,
		},
		{
			Name: "O4_proof_hash_shape",
			SQL: `SELECT agreement_id, proof_hash FROM agreements
                  WHERE proof_hash !~ '^[0-9a-f]{64}$'`,
		},
		{
			Name: "O5_share_token_shape",
			SQL: `SELECT agreement_id, share_token FROM agreements
                  WHERE share_token !~ '^[0-9a-f]{64}$'`,
		},
		{
			Name: "O6_paid_payment_record",
			SQL: `SELECT agreement_id FROM agreements
                  WHERE status = 'PAID' AND (payment_status <> 'paid' OR payment_date IS NULL)`,
		},
		{
			Name: "O7_owner_counter_consistent",
			SQL: `SELECT u.id, u.agreement_count, COUNT(a.agreement_id) AS actual
                  FROM users u
                  LEFT JOIN agreements a ON a.owner_id = u.id
                  GROUP BY u.id, u.agreement_count
                  HAVING u.agreement_count <> COUNT(a.agreement_id)`,
		},
		{
			Name: "O8_cancelled_stays_mutable_record",
			SQL: `SELECT agreement_id FROM agreements
                  WHERE status = 'CANCELLED' AND (is_immutable OR confirmed_at IS NOT NULL)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a
// sample row) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
