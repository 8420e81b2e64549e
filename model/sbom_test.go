package model

import "testing"

func TestComponentProperty(t *testing.T) {
	c := Component{Properties: []Property{
		{Name: "Ecosystem", Value: "nuget"},
		{Name: "ecosystem", Value: "npm"},
	}}

	if got, ok := c.Property("ecosystem"); !ok || got != "nuget" {
		t.Errorf("Property(ecosystem) = %q, %v, want nuget, true", got, ok)
	}
	if _, ok := c.Property("scope"); ok {
		t.Error("Property(scope) found a value on a component without it")
	}
}
