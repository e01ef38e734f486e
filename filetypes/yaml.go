package filetypes

import (
	"encoding/json"
	"fmt"

	"github.com/GlintPay/gkcs/utils"
	"sigs.k8s.io/yaml"
)

type YamlReader struct {
	Decrypter Decrypter
}

func (YamlReader) Extensions() []string {
	return []string{".yml", ".yaml"}
}

func (y YamlReader) Read(data []byte) (map[string]any, error) {
	data, err := decrypt(y.Decrypter, data, "yaml")
	if err != nil {
		return nil, err
	}

	doc, err := unmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return utils.FlattenProperties(doc), nil
}

type JsonReader struct {
	Decrypter Decrypter
}

func (JsonReader) Extensions() []string {
	return []string{".json"}
}

func (j JsonReader) Read(data []byte) (map[string]any, error) {
	data, err := decrypt(j.Decrypter, data, "json")
	if err != nil {
		return nil, err
	}

	doc, err := unmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return utils.FlattenProperties(doc), nil
}

func decrypt(d Decrypter, data []byte, format string) ([]byte, error) {
	if d == nil {
		return data, nil
	}
	return d.Decrypt(data, format)
}

// sigs.k8s.io/yaml goes through JSON, so nested maps always come back as map[string]any.
// Numbers are decoded exactly: integers as int64, everything else as float64.
func unmarshalDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if e := yaml.Unmarshal(data, &doc, useNumber); e != nil {
		return nil, e
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	return normalizeNumbers(doc).(map[string]any), nil
}

func useNumber(d *json.Decoder) *json.Decoder {
	d.UseNumber()
	return d
}

// normalizeNumbers replaces json.Number values with int64 where they are integers, float64
// otherwise
func normalizeNumbers(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, each := range typed {
			typed[k] = normalizeNumbers(each)
		}
		return typed
	case []any:
		for i, each := range typed {
			typed[i] = normalizeNumbers(each)
		}
		return typed
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		f, _ := typed.Float64()
		return f
	default:
		return v
	}
}
