package common

type DeployParams struct {
	FunctionName         string
	BucketName           string
	KeyName              string
	Region               string
	ZipFile              string
	EnvironmentVariables map[string]string
	Memory               int
	Timeout              int
	Policy               string
	Runtime              string
	HandlerName          string
	RoleArn              string
	// Layers are attached in order; an empty slice leaves the function's layers untouched.
	Layers []string
}

// LayerParams drives packaging and publishing of dependency layers.
type LayerParams struct {
	LayerName          string
	Description        string
	SourceDir          string
	Prefix             string
	PackagesPerLayer   int
	CompatibleRuntimes []string
	Architectures      []string
	LicenseInfo        string
	Region             string
}
