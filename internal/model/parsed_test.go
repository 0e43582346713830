package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleFormatValidate(t *testing.T) {
	valid := SimpleFormat{Separator: ";", ChipColumn: 2, TimeColumn: 3, DateFormat: DateTimeOnly}

	tests := []struct {
		name    string
		mutate  func(*SimpleFormat)
		wantErr bool
	}{
		{name: "valid", mutate: func(f *SimpleFormat) {}},
		{name: "tab separator", mutate: func(f *SimpleFormat) { f.Separator = "\t" }},
		{name: "explicit time format", mutate: func(f *SimpleFormat) { f.TimeFormat = TimeHMSMs }},
		{name: "unknown separator", mutate: func(f *SimpleFormat) { f.Separator = "|" }, wantErr: true},
		{name: "empty separator", mutate: func(f *SimpleFormat) { f.Separator = "" }, wantErr: true},
		{name: "zero chip column", mutate: func(f *SimpleFormat) { f.ChipColumn = 0 }, wantErr: true},
		{name: "chip column too large", mutate: func(f *SimpleFormat) { f.ChipColumn = 6 }, wantErr: true},
		{name: "negative time column", mutate: func(f *SimpleFormat) { f.TimeColumn = -1 }, wantErr: true},
		{name: "unknown date format", mutate: func(f *SimpleFormat) { f.DateFormat = "DD.MM.YYYY" }, wantErr: true},
		{name: "unknown time format", mutate: func(f *SimpleFormat) { f.TimeFormat = "HMS_US" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)

			err := f.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
