package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Report is the result of Validate.
type Report struct {
	Errors   []string
	Warnings []string
	Modes    []string
	Faces    int
}

// OK reports whether validation found no errors.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the asset tree at root without loading it: JSON syntax,
// required fields and referenced image files. Missing animation frames and
// key images are warnings; everything else is an error.
func Validate(root string) Report {
	var r Report
	r.validateFaces(root)
	for _, mode := range r.validateModeList(root) {
		r.validateMode(root, mode)
	}
	return r
}

// readFields reads a JSON object keeping the raw fields, so presence can be
// told apart from an empty value.
func (r *Report) readFields(path string) map[string]json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.errorf("File not found: %s", path)
		} else {
			r.errorf("Failed to read %s: %v", path, err)
		}
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		r.errorf("Invalid JSON in %s: %v", path, err)
		return nil
	}
	return fields
}

func (r *Report) field(fields map[string]json.RawMessage, name, file string, v any) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		r.errorf("%s: field %q has the wrong type: %v", file, name, err)
		return false
	}
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (r *Report) validateFaces(root string) {
	dir := filepath.Join(root, "face")
	fields := r.readFields(filepath.Join(dir, "config.json"))
	if fields == nil {
		return
	}

	var hotkeys, images []string
	if !r.field(fields, "HotKey", "face/config.json", &hotkeys) {
		r.errorf("face/config.json: Missing 'HotKey' field")
		return
	}
	if !r.field(fields, "FaceImageName", "face/config.json", &images) {
		r.errorf("face/config.json: Missing 'FaceImageName' field")
		return
	}
	if len(hotkeys) != len(images) {
		r.errorf("face/config.json: HotKey count (%d) != FaceImageName count (%d)", len(hotkeys), len(images))
		return
	}
	for _, img := range images {
		if p := filepath.Join(dir, img); !exists(p) {
			r.errorf("Missing face image: %s", p)
		}
	}
	r.Faces = len(images)
}

func (r *Report) validateModeList(root string) []string {
	fields := r.readFields(filepath.Join(root, "mode", "config.json"))
	if fields == nil {
		return nil
	}
	var modes []string
	if !r.field(fields, "ModelPath", "mode/config.json", &modes) {
		r.errorf("mode/config.json: Missing 'ModelPath' field")
		return nil
	}
	r.Modes = modes
	return modes
}

func (r *Report) validateMode(root, mode string) {
	dir := filepath.Join(root, "mode", mode)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		r.errorf("Mode directory not found: %s", dir)
		return
	}
	file := mode + "/config.json"
	fields := r.readFields(filepath.Join(dir, "config.json"))
	if fields == nil {
		return
	}

	for _, name := range []string{"BackgroundImageName", "CatBackgroundImageName"} {
		var img string
		if !r.field(fields, name, file, &img) {
			r.errorf("%s: Missing required field '%s'", file, name)
			continue
		}
		if p := filepath.Join(dir, img); !exists(p) {
			r.errorf("Missing background: %s", p)
		}
	}

	for _, hand := range []string{"LeftHand", "RightHand"} {
		var sub, up string
		var frames []string
		if !r.field(fields, hand+"ImagePath", file, &sub) || sub == "" {
			continue
		}
		handDir := filepath.Join(dir, sub)
		if !exists(handDir) {
			r.errorf("Missing %s directory: %s", hand, handDir)
			continue
		}
		if r.field(fields, hand+"UpImageName", file, &up) {
			if p := filepath.Join(handDir, up); !exists(p) {
				r.errorf("Missing %s up image: %s", hand, p)
			}
		}
		if r.field(fields, hand+"ImageName", file, &frames) {
			for _, img := range frames {
				if p := filepath.Join(handDir, img); !exists(p) {
					r.warnf("Missing %s frame: %s", hand, p)
				}
			}
		}
	}

	var keysPath string
	if r.field(fields, "KeysImagePath", file, &keysPath) && keysPath != "" {
		keysDir := filepath.Join(dir, keysPath)
		if !exists(keysDir) {
			r.errorf("Missing keys directory: %s", keysDir)
			return
		}
		var keys []string
		if r.field(fields, "KeysImageName", file, &keys) {
			for _, img := range keys {
				if p := filepath.Join(keysDir, img); !exists(p) {
					r.warnf("Missing key image: %s", p)
				}
			}
		}
	}
}
