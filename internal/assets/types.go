package assets

// FaceConfig is face/config.json. HotKey[i] selects FaceImageName[i].
type FaceConfig struct {
	HotKey        []string `json:"HotKey"`
	FaceImageName []string `json:"FaceImageName"`
}

// ModeList is mode/config.json.
type ModeList struct {
	ModelPath []string `json:"ModelPath"`
}

// ModeConfig is mode/<name>/config.json.
type ModeConfig struct {
	BackgroundImageName    string `json:"BackgroundImageName"`
	CatBackgroundImageName string `json:"CatBackgroundImageName"`
	HasModel               bool   `json:"HasModel"`
	CatModelPath           string `json:"CatModelPath,omitempty"`

	KeysImagePath string   `json:"KeysImagePath,omitempty"`
	KeysImageName []string `json:"KeysImageName,omitempty"`
	KeyUse        []string `json:"KeyUse,omitempty"`

	ModelHasLeftHandModel  bool     `json:"ModelHasLeftHandModel"`
	ModelLeftHandModelPath string   `json:"ModelLeftHandModelPath,omitempty"`
	LeftHandImagePath      string   `json:"LeftHandImagePath,omitempty"`
	LeftHandUpImageName    string   `json:"LeftHandUpImageName,omitempty"`
	LeftHandImageName      []string `json:"LeftHandImageName,omitempty"`

	ModelHasRightHandModel  bool     `json:"ModelHasRightHandModel"`
	ModelRightHandModelPath string   `json:"ModelRightHandModelPath,omitempty"`
	RightHandImagePath      string   `json:"RightHandImagePath,omitempty"`
	RightHandUpImageName    string   `json:"RightHandUpImageName,omitempty"`
	RightHandImageName      []string `json:"RightHandImageName,omitempty"`

	// ExpressionParts lists the parts shown per expression, e.g.
	// {"surprised": ["face.shock", "sweat"]}
	ExpressionParts map[string][]string `json:"ExpressionParts,omitempty"`
}

// ExpressionConfig is the optional expression/config.json. Unset fields keep
// the defaults.
type ExpressionConfig struct {
	HappyRate      *float64          `json:"HappyRate,omitempty"`
	SadRate        *float64          `json:"SadRate,omitempty"`
	SurprisedZones *int              `json:"SurprisedZones,omitempty"`
	IdleTimeoutMS  *int              `json:"IdleTimeoutMS,omitempty"`
	Faces          map[string]string `json:"Faces,omitempty"`
}

// Face is one selectable face image.
type Face struct {
	ID     string `json:"id"`
	Image  string `json:"image"`
	HotKey string `json:"hotkey,omitempty"`
}

// Part returns the part parameter of the face.
func (f Face) Part() string {
	return "part.face." + f.ID
}
