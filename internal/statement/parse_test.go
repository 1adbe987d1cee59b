package statement

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]int64{
		"150":        15000,
		"150,00":     15000,
		"1.234,56":   123456,
		"1,234.56":   123456,
		"1.234":      123400,
		"12.5":       1250,
		"-R$ 150,00": -15000,
		"(45.00)":    -4500,
		"80,10-":     -8010,
		"0,99":       99,
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "abc", "1-2", "1,234.567"} {
		_, err := ParseAmount(bad)
		require.Error(t, err, bad)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-15", "15/03/2024", "15-03-2024"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), in)
	}
	_, err := ParseDate("yesterday")
	require.Error(t, err)
}

func TestParseCSVDetectsHeaderAfterPreamble(t *testing.T) {
	input := "\xEF\xBB\xBFBanco Exemplo;Conta 123\n" +
		"\n" +
		"Data;Histórico;Valor;Documento\n" +
		"15/03/2024;PIX RECEBIDO;1.500,00;abc1\n" +
		";;;\n" +
		"16/03/2024;TARIFA;-12,90;\n"

	lines, err := Parse("extrato.csv", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "PIX RECEBIDO", lines[0].Description)
	require.EqualValues(t, 150000, lines[0].AmountCents)
	require.Equal(t, "abc1", lines[0].Reference)
	require.EqualValues(t, -1290, lines[1].AmountCents)
	require.Equal(t, 16, lines[1].Date.Day())
}

func TestParseCSVCreditDebitColumns(t *testing.T) {
	input := "date,description,credit,debit\n" +
		"2024-03-01,Rent,2000.00,\n" +
		"2024-03-02,Plumber,,350.00\n"
	lines, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.EqualValues(t, 200000, lines[0].AmountCents)
	require.EqualValues(t, -35000, lines[1].AmountCents)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("statement.pdf", strings.NewReader(""))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse("statement.csv", strings.NewReader("foo,bar\n1,2\n"))
	require.ErrorContains(t, err, "header row")

	_, err = Parse("statement.csv", strings.NewReader("date,description,amount\nnot-a-date,x,1\n"))
	require.ErrorContains(t, err, "row 2")
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Date", "Description", "Amount"},
		{"2024-04-01", "Condo fee", "-450.00"},
		{"2024-04-03", "Booking payout", "1200.50"},
	}
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, ref, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	lines, err := Parse("april.xlsx", &buf)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.EqualValues(t, -45000, lines[0].AmountCents)
	require.EqualValues(t, 120050, lines[1].AmountCents)
	require.Equal(t, "Booking payout", lines[1].Description)
}
