package db

import (
	"testing"

	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTransferQueryCombinesStatusClauses(t *testing.T) {
	require.Equal(t, bson.M{}, transferQuery(types.TransferFilter{}))
	require.Equal(t, bson.M{"from_chain": "WAN"}, transferQuery(types.TransferFilter{FromChain: "WAN"}))

	query := transferQuery(types.TransferFilter{
		NonTerminal: true,
		Statuses:    []types.Status{types.StatusLockSent},
		FromChain:   "WAN",
	})
	require.Equal(t, bson.M{"$and": bson.A{
		bson.M{"status": bson.M{"$nin": terminalStatuses}},
		bson.M{"status": bson.M{"$in": []string{"LockSent"}}},
		bson.M{"from_chain": "WAN"},
	}}, query)
}
