package plan

import (
	"errors"
	"testing"
)

func TestCheckAggregate(t *testing.T) {
	s := musicSchema(t)

	tests := []struct {
		name     string
		agg      Aggregate
		wantType string
		wantPath bool
		wantErr  error
	}{
		{name: "count rows", agg: Aggregate{Table: "track", Func: Count}, wantType: "integer"},
		{name: "count column", agg: Aggregate{Table: "track", Func: Count, Column: "cover"}, wantType: "integer", wantPath: true},
		{name: "count distinct text", agg: Aggregate{Table: "track", Func: CountDistinct, Column: "album.title"}, wantType: "integer", wantPath: true},
		{name: "count distinct nullable reference", agg: Aggregate{Table: "employee", Func: CountDistinct, Column: "reports_to"}, wantType: "integer", wantPath: true},
		{name: "sum float", agg: Aggregate{Table: "track", Func: Sum, Column: "price"}, wantType: "nullable(float)", wantPath: true},
		{name: "sum nullable int", agg: Aggregate{Table: "album", Func: Sum, Column: "year"}, wantType: "nullable(integer)", wantPath: true},
		{name: "avg int", agg: Aggregate{Table: "track", Func: Avg, Column: "album.year"}, wantType: "nullable(float)", wantPath: true},
		{name: "max text", agg: Aggregate{Table: "track", Func: Max, Column: "album.artist.name"}, wantType: "nullable(text)", wantPath: true},
		{name: "min with filter", agg: Aggregate{Table: "track", Func: Min, Column: "price"}.Where("album.title", Eq, "Walls of Jericho"), wantType: "nullable(float)", wantPath: true},
		{name: "unknown table", agg: Aggregate{Table: "genre", Func: Count}, wantErr: ErrUnknownTable},
		{name: "unknown column", agg: Aggregate{Table: "track", Func: Max, Column: "genre"}, wantErr: ErrUnknownColumn},
		{name: "sum needs column", agg: Aggregate{Table: "track", Func: Sum}, wantErr: ErrBadAggregate},
		{name: "sum of text", agg: Aggregate{Table: "track", Func: Sum, Column: "name"}, wantErr: ErrBadAggregate},
		{name: "avg of reference", agg: Aggregate{Table: "track", Func: Avg, Column: "album"}, wantErr: ErrBadAggregate},
		{name: "max of blob", agg: Aggregate{Table: "track", Func: Max, Column: "cover"}, wantErr: ErrBadAggregate},
		{name: "unknown func", agg: Aggregate{Table: "track", Func: Func(99), Column: "price"}, wantErr: ErrBadAggregate},
		{name: "bad filter", agg: Aggregate{Table: "track", Func: Count}.Where("cover", Eq, []byte{1}), wantErr: ErrPlanType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := CheckAggregate(s, tt.agg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrPlanType) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckAggregate failed: %v", err)
			}
			if got := r.Type().String(); got != tt.wantType {
				t.Errorf("type = %q, want %q", got, tt.wantType)
			}
			if _, ok := r.Path(); ok != tt.wantPath {
				t.Errorf("has path = %v, want %v", ok, tt.wantPath)
			}
			if len(r.Select.Filters) != len(tt.agg.Filters) {
				t.Errorf("got %d filters, want %d", len(r.Select.Filters), len(tt.agg.Filters))
			}
		})
	}
}

func TestParseFunc(t *testing.T) {
	for _, name := range []string{"count", "count_distinct", "sum", "avg", "min", "max"} {
		if _, err := ParseFunc(name); err != nil {
			t.Errorf("ParseFunc(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseFunc("median"); !errors.Is(err, ErrBadAggregate) {
		t.Errorf("ParseFunc(median) err = %v, want ErrBadAggregate", err)
	}
}
