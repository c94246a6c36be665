package sectorfile

import (
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestEncode_Golden(t *testing.T) {
	g := goldie.New(t)

	out, err := Encode(map[int]string{
		1: "data:image/png;base64,iVBORw0KGgo=",
		3: "data:image/gif;base64,R0lGODlh",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	g.Assert(t, "export_two_images", out)

	out, err = Encode(nil)
	if err != nil {
		t.Fatalf("Encode(nil): %v", err)
	}
	g.Assert(t, "export_empty", out)
}

func TestParse_RoundTrip(t *testing.T) {
	images := map[int]string{
		2:  "data:image/png;base64,AAAA",
		12: "data:image/jpeg;base64,BBBB",
	}
	data, err := Encode(images)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Type != Type {
		t.Errorf("type = %q", f.Type)
	}
	if len(f.Images) != 2 || f.Images[2] != images[2] || f.Images[12] != images[12] {
		t.Errorf("images = %v, want %v", f.Images, images)
	}
}

func TestParse_MissingImagesIsEmpty(t *testing.T) {
	f, err := Parse([]byte(`{"type":"tera-sector-images"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Images == nil || len(f.Images) != 0 {
		t.Errorf("images = %v, want empty map", f.Images)
	}
}

func TestParse_WrongType(t *testing.T) {
	for _, in := range []string{
		`{"type":"something-else","images":{"1":"data:..."}}`,
		`{"images":{"1":"data:..."}}`,
		`{"type":42,"images":{}}`,
		`{"type":"TERA-SECTOR-IMAGES","images":{}}`,
	} {
		_, err := Parse([]byte(in))
		if !errors.Is(err, ErrWrongType) {
			t.Errorf("Parse(%s) error = %v, want ErrWrongType", in, err)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`[]`,
		`{"type":"tera-sector-images","images":{"x":"data:..."}}`,
		`{"type":"tera-sector-images","images":{"0":"data:..."}}`,
		`{"type":"tera-sector-images","images":{"13":"data:..."}}`,
		`{"type":"tera-sector-images","images":{"1":7}}`,
		`{"type":"tera-sector-images","images":[]}`,
		`{"type":"tera-sector-images","images":{"01":"data:..."}}`,
		`{"type":"tera-sector-images","images":{"+1":"data:..."}}`,
		`{"type":"tera-sector-images","images":{" 1":"data:..."}}`,
		`{"type":"tera-sector-images","images":{"1":"data:a","01":"data:b"}}`,
	} {
		_, err := Parse([]byte(in))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%s) error = %v, want ErrMalformed", in, err)
		}
	}
}
