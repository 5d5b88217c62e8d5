package layer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amithasarath/test-common-framework/common"
	"github.com/amithasarath/test-common-framework/utils"
)

type mockLayerApi struct {
	throttles int
	published []*lambda.PublishLayerVersionInput
	versions  []types.LayerVersionsListItem
	listErr   error
}

func (m *mockLayerApi) PublishLayerVersion(ctx context.Context, params *lambda.PublishLayerVersionInput, optFns ...func(*lambda.Options)) (*lambda.PublishLayerVersionOutput, error) {
	if m.throttles > 0 {
		m.throttles--
		return nil, &types.TooManyRequestsException{Message: aws.String("slow down")}
	}
	m.published = append(m.published, params)
	version := int64(len(m.published))
	arn := "arn:aws:lambda:us-east-1:123456789012:layer:" + *params.LayerName
	return &lambda.PublishLayerVersionOutput{
		LayerArn:        aws.String(arn),
		LayerVersionArn: aws.String(fmt.Sprintf("%s:%d", arn, version)),
		Version:         version,
	}, nil
}

func (m *mockLayerApi) ListLayerVersions(ctx context.Context, params *lambda.ListLayerVersionsInput, optFns ...func(*lambda.Options)) (*lambda.ListLayerVersionsOutput, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &lambda.ListLayerVersionsOutput{LayerVersions: m.versions}, nil
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func zipEntries(t *testing.T, data []byte) []string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	sort.Strings(names)
	return names
}

func sitePackages(t *testing.T) string {
	return writeTree(t, map[string]string{
		"requests/__init__.py":             "import urllib3",
		"requests/api.py":                  "def get(): pass",
		"requests/__pycache__/api.pyc":     "bytecode",
		"pydantic/__init__.py":             "",
		"test_common_framework/utils.py":   "def retry(): pass",
		"six.py":                           "PY3 = True",
		"__pycache__/six.cpython-312.pyc":  "bytecode",
		"watchtower/__init__.py":           "",
		"test_common_framework/version.py": "__version__ = '0.3.11'",
	})
}

func TestDiscoverPackages(t *testing.T) {
	packages, err := DiscoverPackages(sitePackages(t))
	require.NoError(t, err)

	names := make([]string, 0, len(packages))
	for _, pkg := range packages {
		names = append(names, pkg.Name)
	}
	assert.Equal(t, []string{"pydantic", "requests", "six.py", "test_common_framework", "watchtower"}, names)
	assert.False(t, packages[2].IsDir)

	_, err = DiscoverPackages(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	packages := []Package{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	groups, err := Plan(packages, 2)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Len(t, groups[1], 1)

	groups, err = Plan(packages, 0)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	_, err = Plan(nil, 1)
	assert.ErrorIs(t, err, ErrNothingToBuild)

	many := make([]Package, MaxLayersPerFunction+1)
	_, err = Plan(many, 1)
	assert.ErrorIs(t, err, ErrTooManyLayers)
}

func TestBuildArchive(t *testing.T) {
	packages, err := DiscoverPackages(sitePackages(t))
	require.NoError(t, err)

	var first bytes.Buffer
	stats, err := BuildArchive(&first, packages, DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Files)

	assert.Equal(t, []string{
		"python/pydantic/__init__.py",
		"python/requests/__init__.py",
		"python/requests/api.py",
		"python/six.py",
		"python/test_common_framework/utils.py",
		"python/test_common_framework/version.py",
		"python/watchtower/__init__.py",
	}, zipEntries(t, first.Bytes()))

	var second bytes.Buffer
	_, err = BuildArchive(&second, packages, DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize(ArchiveStats{CompressedBytes: 1, UncompressedBytes: 1}))
	assert.ErrorIs(t, CheckSize(ArchiveStats{CompressedBytes: MaxCompressedBytes + 1}), ErrLayerTooLarge)
	assert.ErrorIs(t, CheckSize(ArchiveStats{UncompressedBytes: MaxUncompressedBytes + 1}), ErrLayerTooLarge)
}

func TestPublishAllSplitsAcrossLayers(t *testing.T) {
	mock := &mockLayerApi{throttles: 1}
	wrapper := ServiceWrapper{
		Client:      mock,
		RetryPolicy: utils.RetryPolicy{MaxAttempts: 3, RetryIf: common.IsThrottled},
	}

	published, err := wrapper.PublishAll(context.Background(), common.LayerParams{
		LayerName:          "deps",
		SourceDir:          sitePackages(t),
		PackagesPerLayer:   3,
		CompatibleRuntimes: []string{"python3.12"},
		Description:        "test_common_framework v0.3.11",
	})
	require.NoError(t, err)
	require.Len(t, published, 2)

	assert.Equal(t, "deps-1", published[0].Name)
	assert.Equal(t, []string{"pydantic", "requests", "six.py"}, published[0].Packages)
	assert.Equal(t, "deps-2", published[1].Name)
	assert.Equal(t, []string{"test_common_framework", "watchtower"}, published[1].Packages)
	assert.Equal(t, "arn:aws:lambda:us-east-1:123456789012:layer:deps-2:2", published[1].LayerVersionArn)

	require.Len(t, mock.published, 2)
	assert.Equal(t, []types.Runtime{"python3.12"}, mock.published[0].CompatibleRuntimes)
	assert.Equal(t, "test_common_framework v0.3.11", aws.ToString(mock.published[0].Description))
	assert.Equal(t, []string{
		"python/test_common_framework/utils.py",
		"python/test_common_framework/version.py",
		"python/watchtower/__init__.py",
	}, zipEntries(t, mock.published[1].Content.ZipFile))
}

func TestPublishAllSingleLayerKeepsName(t *testing.T) {
	mock := &mockLayerApi{}
	wrapper := ServiceWrapper{Client: mock}

	published, err := wrapper.PublishAll(context.Background(), common.LayerParams{
		LayerName: "deps",
		SourceDir: sitePackages(t),
		Prefix:    "nodejs/node_modules",
	})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "deps", published[0].Name)
	assert.Contains(t, zipEntries(t, mock.published[0].Content.ZipFile), "nodejs/node_modules/six.py")
	assert.Zero(t, published[0].PreviousVersion)
}

func TestPublishAllRecordsPreviousVersion(t *testing.T) {
	mock := &mockLayerApi{versions: []types.LayerVersionsListItem{{Version: 4}}}
	wrapper := ServiceWrapper{Client: mock}

	published, err := wrapper.PublishAll(context.Background(), common.LayerParams{
		LayerName: "deps",
		SourceDir: sitePackages(t),
	})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, int64(4), published[0].PreviousVersion)

	mock = &mockLayerApi{listErr: &smithy.GenericAPIError{Code: "AccessDeniedException"}}
	published, err = ServiceWrapper{Client: mock}.PublishAll(context.Background(), common.LayerParams{
		LayerName: "deps",
		SourceDir: sitePackages(t),
	})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Zero(t, published[0].PreviousVersion)
	assert.Len(t, mock.published, 1)
}

func TestPublishGivesUpWhenThrottled(t *testing.T) {
	mock := &mockLayerApi{throttles: 5}
	wrapper := ServiceWrapper{
		Client:      mock,
		RetryPolicy: utils.RetryPolicy{MaxAttempts: 2, RetryIf: common.IsThrottled},
	}

	_, err := wrapper.Publish(context.Background(), "deps", common.LayerParams{}, []byte("zip"))
	assert.ErrorIs(t, err, utils.ErrRetryExhausted)
	assert.True(t, common.IsThrottled(err))
}

func TestValidateLayerParams(t *testing.T) {
	assert.Error(t, ValidateLayerParams(common.LayerParams{SourceDir: "deps"}))
	assert.Error(t, ValidateLayerParams(common.LayerParams{LayerName: "deps"}))
	assert.NoError(t, ValidateLayerParams(common.LayerParams{LayerName: "deps", SourceDir: "deps"}))

	var inputErr *common.InputError
	assert.True(t, errors.As(ValidateLayerParams(common.LayerParams{}), &inputErr))
}

func TestLatestVersion(t *testing.T) {
	wrapper := ServiceWrapper{Client: &mockLayerApi{}}
	latest, err := wrapper.LatestVersion(context.Background(), "deps")
	require.NoError(t, err)
	assert.Nil(t, latest)

	wrapper = ServiceWrapper{Client: &mockLayerApi{versions: []types.LayerVersionsListItem{
		{LayerVersionArn: aws.String("arn:aws:lambda:us-east-1:123456789012:layer:deps:7"), Version: 7},
	}}}
	latest, err = wrapper.LatestVersion(context.Background(), "deps")
	require.NoError(t, err)
	assert.EqualValues(t, 7, latest.Version)

	wrapper = ServiceWrapper{Client: &mockLayerApi{listErr: &types.ResourceNotFoundException{}}}
	latest, err = wrapper.LatestVersion(context.Background(), "deps")
	assert.NoError(t, err)
	assert.Nil(t, latest)
}
