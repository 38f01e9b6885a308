package tokens

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Seguimiento":            "seguimiento",
		"  FOLLOW_UP ":           "followup",
		"follow-up":              "followup",
		"Evaluación Inicial":     "evaluacioninicial",
		"Cancelled_By_Therapist": "cancelledbytherapist",
		"Cancelada por Paciente": "canceladaporpaciente",
		"Rehabilitación":         "rehabilitacion",
		"Señal":                  "senal",
		"":                       "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	table := map[string]int{"efectivo": 1, "cash": 1, "tarjeta": 2}

	if v, ok := Lookup("EFECTIVO", table); !ok || v != 1 {
		t.Fatalf("expected efectivo -> 1, got %d ok=%v", v, ok)
	}
	if _, ok := Lookup("cheque", table); ok {
		t.Fatalf("expected cheque to be rejected")
	}
}
