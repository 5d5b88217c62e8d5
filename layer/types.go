package layer

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"go.uber.org/zap"

	"github.com/amithasarath/test-common-framework/utils"
)

const (
	// MaxCompressedBytes is the largest zip Lambda accepts for a layer.
	MaxCompressedBytes = 50 << 20
	// MaxUncompressedBytes is the unzipped limit for a function and all its layers.
	MaxUncompressedBytes = 250 << 20
	// MaxLayersPerFunction is how many layers a single function can reference.
	MaxLayersPerFunction = 5
	// DefaultPrefix places dependencies where the Python runtime puts them on sys.path.
	DefaultPrefix = "python/"
)

var (
	// ErrLayerTooLarge is returned when an archive breaks a Lambda size limit.
	ErrLayerTooLarge  = errors.New("layer exceeds size limit")
	ErrTooManyLayers  = errors.New("too many layers for one function")
	ErrNothingToBuild = errors.New("no packages found")
)

// Package is one installed dependency: a top level directory or file of the source dir.
type Package struct {
	Name  string
	Path  string
	IsDir bool
}

type ArchiveStats struct {
	Files             int
	UncompressedBytes int64
	CompressedBytes   int64
}

type PublishedLayer struct {
	Name            string
	LayerArn        string
	LayerVersionArn string
	Version         int64
	// PreviousVersion is the version that was latest before publishing, 0 for a new layer.
	PreviousVersion int64
	Packages        []string
	Stats           ArchiveStats
}

type LayerApi interface {
	PublishLayerVersion(ctx context.Context, params *lambda.PublishLayerVersionInput, optFns ...func(*lambda.Options)) (*lambda.PublishLayerVersionOutput, error)
	ListLayerVersions(ctx context.Context, params *lambda.ListLayerVersionsInput, optFns ...func(*lambda.Options)) (*lambda.ListLayerVersionsOutput, error)
}

type ServiceWrapper struct {
	Client      LayerApi
	Logger      *zap.Logger
	RetryPolicy utils.RetryPolicy
}

func (wrapper ServiceWrapper) logger() *zap.Logger {
	if wrapper.Logger == nil {
		return zap.NewNop()
	}
	return wrapper.Logger
}
