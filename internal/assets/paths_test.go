package assets

import "testing"

func TestNameFromFile(t *testing.T) {
	tests := map[string]string{
		"exports/PlayerShip.fbx":   "PlayerShip",
		`C:\exports\EnemyShip.FBX`: "EnemyShip",
		"Projectile.glb":           "Projectile",
		"/abs/path/model.v2.obj":   "model.v2",
		"":                         "",
	}
	for in, want := range tests {
		if got := NameFromFile(in); got != want {
			t.Errorf("NameFromFile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDestination(t *testing.T) {
	root := "/Game/BlenderAssets"
	tests := []struct {
		dest string
		want string
	}{
		{"", "/Game/BlenderAssets"},
		{"/Game/Ships/", "/Game/Ships"},
		{"/Game", "/Game"},
		{"Ships", "/Game/BlenderAssets/Ships"},
		{"/Ships/Enemy/", "/Game/BlenderAssets/Ships/Enemy"},
		{`Props\Rocks`, "/Game/BlenderAssets/Props/Rocks"},
		{"/Gameplay", "/Game/BlenderAssets/Gameplay"},
	}
	for _, tt := range tests {
		if got := Destination(root, tt.dest); got != tt.want {
			t.Errorf("Destination(%q) = %q, want %q", tt.dest, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format("exports/Ship.FBX"); got != "fbx" {
		t.Errorf("expected fbx, got %q", got)
	}
	if got := Format("noext"); got != "" {
		t.Errorf("expected empty format, got %q", got)
	}
}
