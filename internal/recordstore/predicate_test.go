package recordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw       string
		wantOp    Op
		wantValue string
	}{
		{"42", OpEq, "42"},
		{">=10", OpGte, "10"},
		{">10", OpGt, "10"},
		{"<=10", OpLte, "10"},
		{"<10", OpLt, "10"},
		{"!=10", OpNe, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			cond := ParseCond("mileage", tt.raw)
			assert.Equal(t, "mileage", cond.Field)
			assert.Equal(t, tt.wantOp, cond.Op)
			assert.Equal(t, tt.wantValue, cond.Value)
		})
	}
}

func TestParseFilter(t *testing.T) {
	t.Parallel()
	def := carDef()

	t.Run("coerces to declared type", func(t *testing.T) {
		t.Parallel()
		cond, err := ParseFilter(def, "mileage=>=100")
		require.NoError(t, err)
		assert.Equal(t, OpGte, cond.Op)
		assert.Equal(t, int64(100), cond.Value)
	})

	t.Run("interval fields accepted", func(t *testing.T) {
		t.Parallel()
		cond, err := ParseFilter(def, "valid_until_revision=-1")
		require.NoError(t, err)
		assert.Equal(t, RevisionOpen, cond.Value)
	})

	t.Run("audit fields accepted", func(t *testing.T) {
		t.Parallel()
		cond, err := ParseFilter(def, "audit_user=alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", cond.Value)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseFilter(def, "color=red")
		assert.Error(t, err)
	})

	t.Run("missing separator rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseFilter(def, "mileage")
		assert.Error(t, err)
	})
}

func TestPredicateMatch(t *testing.T) {
	t.Parallel()

	rec := Record{
		"name":    "clio",
		"mileage": int64(150),
		"rented":  true,
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"empty predicate matches", nil, true},
		{"equality", Where("name", "clio"), true},
		{"equality miss", Where("name", "twingo"), false},
		{"numeric comparison across types", WhereOp("mileage", OpGt, 100), true},
		{"numeric upper bound", WhereOp("mileage", OpLte, 149), false},
		{"not equal", WhereOp("mileage", OpNe, 150), false},
		{"bool equality", Where("rented", true), true},
		{"conjunction", Where("name", "clio").AndOp("mileage", OpGte, 150), true},
		{"conjunction with failing leg", Where("name", "clio").And("mileage", 1), false},
		{"in list", WhereOp("name", OpIn, []string{"clio", "twingo"}), true},
		{"in list miss", WhereOp("name", OpIn, []string{"megane"}), false},
		{"missing field", Where("color", "red"), false},
		{"string never equals number", Where("mileage", "150x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.pred.match(rec))
		})
	}
}

func TestPredicateWithout(t *testing.T) {
	t.Parallel()

	pred := Where("name", "clio").And(FieldValidUntil, RevisionOpen).And("mileage", 1)
	stripped := pred.without(FieldValidUntil)
	require.Len(t, stripped, 2)
	for _, c := range stripped {
		assert.NotEqual(t, FieldValidUntil, c.Field)
	}
	assert.Len(t, pred, 3, "without does not mutate the receiver")
}

func TestLivePredScopesAndStripsIntervalConds(t *testing.T) {
	t.Parallel()

	pred := Where("name", "clio").AndOp(FieldValidSince, OpGt, 3)
	live := livePred(pred)

	var untilConds int
	for _, c := range live {
		assert.NotEqual(t, FieldValidSince, c.Field, "caller interval conditions are stripped")
		if c.Field == FieldValidUntil {
			untilConds++
			assert.Equal(t, OpEq, c.Op)
			assert.Equal(t, RevisionOpen, c.Value)
		}
	}
	assert.Equal(t, 1, untilConds)
}
