package managed

import (
	"fmt"
	"os"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// ImageMagic identifies a bootstrap image file.
const ImageMagic = "RBDI"

// ImageFormat is the current bootstrap image layout.
// v1: heap settings, thread count, entry-point manifest
const ImageFormat uint32 = 1

// HeapSettings sizes the runtime's storage and collection cadence.
type HeapSettings struct {
	ChunkSize   int `cbor:"chunk_size"`
	GCThreshold int `cbor:"gc_threshold"`
}

// Image is a precompiled bootstrap image: the settings a runtime starts with
// and the manifest of library entry points it was built against.
type Image struct {
	Magic       string       `cbor:"magic"`
	Format      uint32       `cbor:"format"`
	ABI         uint32       `cbor:"abi"`
	Library     string       `cbor:"library"`
	Scalar      string       `cbor:"scalar"`
	Threads     int          `cbor:"threads"`
	Heap        HeapSettings `cbor:"heap"`
	Entrypoints []string     `cbor:"entrypoints"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("managed: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// NewImage returns an image for the given scalar type with default heap settings.
func NewImage(elem ElemType) *Image {
	d := DefaultOptions()
	return &Image{
		Magic:   ImageMagic,
		Format:  ImageFormat,
		Scalar:  elem.String(),
		Threads: d.Threads,
		Heap:    HeapSettings{ChunkSize: d.ChunkSize, GCThreshold: d.GCThreshold},
	}
}

// Exports reports whether the image manifest lists the named entry point.
func (img *Image) Exports(name string) bool {
	_, found := slices.BinarySearch(img.Entrypoints, name)
	return found
}

// EncodeImage serializes img as canonical CBOR. Entry points are sorted first.
func EncodeImage(img *Image) ([]byte, error) {
	out := *img
	out.Entrypoints = slices.Clone(img.Entrypoints)
	slices.Sort(out.Entrypoints)
	return imageEncMode.Marshal(&out)
}

// DecodeImage parses and checks a serialized image.
func DecodeImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImage, err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrImage, img.Magic)
	}
	if img.Format != ImageFormat {
		return nil, fmt.Errorf("%w: format %d, runtime reads %d", ErrImage, img.Format, ImageFormat)
	}
	slices.Sort(img.Entrypoints)
	return &img, nil
}

// WriteImage encodes img to path.
func WriteImage(path string, img *Image) error {
	data, err := EncodeImage(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadImage loads and checks the image at path.
func ReadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func (img *Image) checkScalar(elem ElemType) error {
	want, err := ParseElemType(img.Scalar)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImage, err)
	}
	if want != elem {
		return fmt.Errorf("%w: image built for %s, runtime uses %s", ErrImage, want, elem)
	}
	return nil
}
