package main

import (
	"os"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"github.com/liliang-cn/claimdesk/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest-policies [path...]",
	Short: "Index policy documents for retrieval",
	Long:  "Index policy files or directories. Without arguments the configured policy directory is indexed.",
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ingest := service.NewIngestService(repository.NewPolicyRepository(db), cfg.RAG.ChunkSize, logger)

	if len(args) == 0 {
		args = []string{cfg.RAG.PolicyDir}
	}
	for _, path := range args {
		docs, err := ingestPath(cmd, ingest, path)
		if err != nil {
			return err
		}
		for _, d := range docs {
			cmd.Printf("%s\t%s\t%d chunks\n", d.Filename, d.FileType, d.ChunkCount)
		}
	}

	policies, err := ingest.ListPolicies(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("policy index ready", zap.Int("documents", len(policies)))
	return nil
}

func ingestPath(cmd *cobra.Command, ingest *service.IngestService, path string) ([]*domain.PolicyDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ingest.IngestDir(cmd.Context(), path)
	}
	doc, err := ingest.IngestFile(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	return []*domain.PolicyDocument{doc}, nil
}
