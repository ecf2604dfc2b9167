package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
)

type Provider string

const (
	ProviderBedrock Provider = "bedrock"
	ProviderOllama  Provider = "ollama"
	ProviderGemini  Provider = "gemini"
)

// ModelSpec binds a symbolic key to a provider model.
type ModelSpec struct {
	Key      string   `koanf:"key"`
	Provider Provider `koanf:"provider"`
	ModelID  string   `koanf:"model_id"`
	// Endpoint overrides the provider base URL (Ollama only).
	Endpoint string `koanf:"endpoint"`
}

// BuiltinModels is the catalog available without a models file.
func BuiltinModels() []ModelSpec {
	return []ModelSpec{
		{Key: "LLAMA3_2_11b_BR", Provider: ProviderBedrock, ModelID: "us.meta.llama3-2-11b-instruct-v1:0"},
		{Key: "NOVA_MICRO_BR", Provider: ProviderBedrock, ModelID: "us.amazon.nova-micro-v1:0"},
		{Key: "NOVA_LITE_BR", Provider: ProviderBedrock, ModelID: "us.amazon.nova-lite-v1:0"},
		{Key: "OPENAI_20b_BR", Provider: ProviderBedrock, ModelID: "openai.gpt-oss-20b-1:0"},
		{Key: "OPENAI_120b_BR", Provider: ProviderBedrock, ModelID: "openai.gpt-oss-120b-1:0"},
		{Key: "CLAUDE_HAIKU4_5_BR", Provider: ProviderBedrock, ModelID: "global.anthropic.claude-haiku-4-5-20251001-v1:0"},
		{Key: "LLAMA3_2_11b_LC", Provider: ProviderOllama, ModelID: "llama3.2-vision:11b"},
		{Key: "OPENAI_20b_LC", Provider: ProviderOllama, ModelID: "gpt-oss:20b"},
		{Key: "GEMINI_FLASH", Provider: ProviderGemini, ModelID: "gemini-1.5-flash"},
	}
}

// Backends holds the shared provider handles the factories draw from.
// A nil Bedrock or Gemini handle leaves those keys registered but failing
// at Create time, so the model list stays stable across deployments.
type Backends struct {
	Bedrock    Converser
	Gemini     *genai.Client
	OllamaURL  string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// RegisterModels adds every spec to r, binding it to the matching backend.
func RegisterModels(r *Registry, specs []ModelSpec, b Backends) error {
	for _, spec := range specs {
		if spec.Key == "" || spec.ModelID == "" {
			return fmt.Errorf("llm: model spec needs key and model_id (got %+v)", spec)
		}
		f, err := factoryFor(spec, b)
		if err != nil {
			return err
		}
		r.Register(spec.Key, spec.ModelID, f)
		if b.Logger != nil {
			b.Logger.WithFields(logrus.Fields{"key": spec.Key, "provider": spec.Provider, "model": spec.ModelID}).Debug("llm: model registered")
		}
	}
	return nil
}

func factoryFor(spec ModelSpec, b Backends) (Factory, error) {
	switch spec.Provider {
	case ProviderBedrock:
		return func(context.Context) (Client, error) {
			if b.Bedrock == nil {
				return nil, fmt.Errorf("llm: %s: bedrock is not configured", spec.Key)
			}
			return NewBedrockClient(b.Bedrock, spec.ModelID), nil
		}, nil

	case ProviderOllama:
		base := spec.Endpoint
		if base == "" {
			base = b.OllamaURL
		}
		return func(context.Context) (Client, error) {
			return NewOllamaClient(base, spec.ModelID, b.HTTPClient), nil
		}, nil

	case ProviderGemini:
		return func(context.Context) (Client, error) {
			if b.Gemini == nil {
				return nil, fmt.Errorf("llm: %s: gemini api key not configured", spec.Key)
			}
			return NewGeminiClient(b.Gemini, spec.ModelID), nil
		}, nil

	default:
		return nil, fmt.Errorf("llm: %s: unknown provider %q", spec.Key, spec.Provider)
	}
}
