package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-github/v59/github"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
)

// ServerConfig is populated from the environment. Storage backend
// selection: when an S3 bucket is configured artifacts live in object
// storage, otherwise under StorageDir on local disk.
type ServerConfig struct {
	Stage       string `envconfig:"STAGE" default:"dev"`
	Port        string `envconfig:"PORT" default:"8080"`
	BindAddress string `envconfig:"BIND_ADDRESS"`

	// PublicURL is the externally reachable base address used in dist
	// URLs of the repository index.
	PublicURL string `envconfig:"PUBLIC_URL" required:"true"`

	// Vendor is the Composer vendor namespace all packages are exposed
	// under.
	Vendor string `envconfig:"VENDOR" default:"package-bridge"`

	// ManifestPath points at the package list produced by the discovery
	// step.
	ManifestPath string `envconfig:"MANIFEST_PATH" required:"true"`

	// PackageWhitelist is the comma-separated list of installed package
	// slugs that may be exposed.
	PackageWhitelist []string `envconfig:"PACKAGE_WHITELIST"`

	// APIKeyPath points at the JSON file holding the API keys.
	APIKeyPath string `envconfig:"API_KEY_PATH" default:"api-keys.json"`

	StorageDir string `envconfig:"STORAGE_DIR" default:"artifacts"`
	WorkDir    string `envconfig:"WORK_DIR"`

	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3Endpoint        string `envconfig:"S3_ENDPOINT"`
	S3AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Prefix          string `envconfig:"S3_PREFIX"`

	// GitHubToken enables resolving releases of packages that declare a
	// github_repo in the manifest.
	GitHubToken string `envconfig:"GITHUB_TOKEN"`

	// StrictIndex fails a whole index request when one release cannot
	// be built, instead of skipping it.
	StrictIndex bool `envconfig:"STRICT_INDEX"`

	DisableRequestCache bool `envconfig:"DISABLE_REQUEST_CACHE"`
	DisableMetrics      bool `envconfig:"DISABLE_METRICS"`
	MetricsProjectID    string `envconfig:"METRICS_PROJECT_ID"`
	Version             string
}

func NewServerConfigFromEnv() (*ServerConfig, error) {
	var sCfg ServerConfig
	if err := envconfig.Process("", &sCfg); err != nil {
		return nil, err
	}
	return &sCfg, nil
}

func (s *ServerConfig) GetServerAddr() string {
	return s.BindAddress + ":" + s.Port
}

// UseS3 reports whether artifacts are stored in object storage.
func (s *ServerConfig) UseS3() bool {
	return s.S3Bucket != ""
}

func (s *ServerConfig) CreateGitHubClient() *github.Client {
	if s.GitHubToken == "" {
		return github.NewClient(nil)
	}
	oauthClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.GitHubToken}))
	return github.NewClient(oauthClient)
}

func (s *ServerConfig) s3EndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{URL: s.S3Endpoint}, nil
}

func (s *ServerConfig) CreateS3Client() (*s3.Client, error) {
	if !s.UseS3() {
		return nil, fmt.Errorf("no s3 bucket configured")
	}
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		s.S3AccessKeyID,
		s.S3SecretAccessKey,
		"",
	)
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
	}
	if s.S3Endpoint != "" {
		opts = append(opts, awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(s.s3EndpointResolver)))
	}
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}
