package categorizer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

func TestReadSamples(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        []Sample
		wantSkipped int
		wantErr     bool
	}{
		{
			name:  "labels are coerced",
			input: "Narration,Category\nSWIGGY ORDER,food & dining\nIRCTC TICKET, Travel\n",
			want: []Sample{
				{Text: "SWIGGY ORDER", Category: domain.CategoryFood},
				{Text: "IRCTC TICKET", Category: domain.CategoryTravel},
			},
		},
		{
			name:        "unknown labels and blank text are skipped",
			input:       "label,description\nGadgets,AMAZON\nRent,\nSalary,ACME PAYROLL\nUnknown,MISC\n",
			want:        []Sample{{Text: "ACME PAYROLL", Category: domain.CategorySalary}},
			wantSkipped: 3,
		},
		{name: "missing category column", input: "description,amount\nSWIGGY,10\n", wantErr: true},
		{name: "empty input", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skipped, err := ReadSamples(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadSamples() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadSamples() mismatch (-want +got):\n%s", diff)
			}
			if skipped != tt.wantSkipped {
				t.Errorf("skipped = %d, want %d", skipped, tt.wantSkipped)
			}
		})
	}
}
