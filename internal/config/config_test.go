package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  webhook_port: "8080"
  metrics_port: "9090"

slm:
  endpoint: "http://localhost:11434"
  model: "llama2"
  timeout: "30s"
  retry_count: 3
  provider: "localai"
  temperature: 0.3
  max_tokens: 500

kubernetes:
  context: "test-context"
  namespace: "default"

actions:
  dry_run: false
  max_concurrent: 5
  cooldown_period: "5m"
  max_replan_attempts: 3

filters:
  - name: "production-filter"
    conditions:
      namespace:
        - "production"
        - "staging"
      severity:
        - "critical"
        - "warning"

logging:
  level: "info"
  format: "json"

webhook:
  port: "8080"
  path: "/webhook"

event_log:
  driver: "sqlite"
  dsn: "incidents.db"
`
				Expect(os.WriteFile(configFile, []byte(validConfig), 0644)).To(Succeed())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.WebhookPort).To(Equal("8080"))
				Expect(config.Server.MetricsPort).To(Equal("9090"))

				Expect(config.SLM.Endpoint).To(Equal("http://localhost:11434"))
				Expect(config.SLM.Model).To(Equal("llama2"))
				Expect(config.SLM.Timeout).To(Equal(30 * time.Second))
				Expect(config.SLM.RetryCount).To(Equal(3))
				Expect(config.SLM.Provider).To(Equal("localai"))
				Expect(config.SLM.Temperature).To(Equal(float32(0.3)))
				Expect(config.SLM.MaxTokens).To(Equal(500))

				Expect(config.Kubernetes.Context).To(Equal("test-context"))
				Expect(config.Kubernetes.Namespace).To(Equal("default"))

				Expect(config.Actions.DryRun).To(BeFalse())
				Expect(config.Actions.MaxConcurrent).To(Equal(5))
				Expect(config.Actions.CooldownPeriod).To(Equal(5 * time.Minute))

				Expect(config.Filters).To(HaveLen(1))
				Expect(config.Filters[0].Name).To(Equal("production-filter"))
				Expect(config.Filters[0].Conditions.Namespace).To(ConsistOf("production", "staging"))

				Expect(config.Webhook.Port).To(Equal("8080"))
				Expect(config.Webhook.Path).To(Equal("/webhook"))

				Expect(config.EventLog.Driver).To(Equal("sqlite"))
			})

			It("should apply LLM defaults when the section is absent", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config.LLM.Provider).To(Equal("openai"))
				Expect(config.LLM.Model).To(Equal("gpt-4o-mini"))
				Expect(config.LLM.APIKeyEnv).To(Equal("OPENAI_API_KEY"))
				Expect(config.LLM.Temperature).To(Equal(float32(0.2)))
			})

			It("should override the LLM section from environment variables", func() {
				os.Setenv("LLM_PROVIDER", "anthropic")
				os.Setenv("LLM_MODEL", "claude-3-5-haiku")
				defer os.Unsetenv("LLM_PROVIDER")
				defer os.Unsetenv("LLM_MODEL")

				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config.LLM.Provider).To(Equal("anthropic"))
				Expect(config.LLM.Model).To(Equal("claude-3-5-haiku"))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when config fails validation", func() {
			It("should return an error for an invalid logging level", func() {
				invalid := `
server:
  webhook_port: "8080"
  metrics_port: "9090"
event_log:
  driver: sqlite
  dsn: incidents.db
logging:
  level: "nonsense"
  format: "json"
`
				Expect(os.WriteFile(configFile, []byte(invalid), 0644)).To(Succeed())
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
