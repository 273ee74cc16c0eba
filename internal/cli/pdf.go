package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wwwzy/DocAgent/internal/ocr"
	"github.com/wwwzy/DocAgent/internal/pdfreader"
)

var (
	pdfPassword  string
	pdfNoOCR     bool
	pdfImagesOut string
)

// pdfCmd 直接查看单个 PDF 的抽取结果，不写入索引
var pdfCmd = &cobra.Command{
	Use:   "pdf",
	Short: "查看单个 PDF 的文本、分页结果、图片与元数据",
}

var pdfTextCmd = &cobra.Command{
	Use:   "text <file>",
	Short: "输出合并了元数据与逐页文本的完整文本",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reader, closeOCR, err := openPDF(args[0], !pdfNoOCR)
		if err != nil {
			return err
		}
		defer closeOCR()

		text, err := reader.CompleteText(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var pdfPagesCmd = &cobra.Command{
	Use:   "pages <file>",
	Short: "逐页显示原生文本与 OCR 的抽取状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reader, closeOCR, err := openPDF(args[0], !pdfNoOCR)
		if err != nil {
			return err
		}
		defer closeOCR()

		pages, err := reader.ProcessPDF(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Page\tNative\tOCR\tMergedWords\tError")
		fmt.Fprintln(w, "----\t------\t---\t-----------\t-----")
		for _, p := range pages {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
				p.PageNumber, p.Native.Status(), p.OCR.Status(), len(strings.Fields(p.Merged)), pageError(p))
		}
		return w.Flush()
	},
}

var pdfImagesCmd = &cobra.Command{
	Use:   "images <file>",
	Short: "导出页面内嵌的图片",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reader, closeOCR, err := openPDF(args[0], false)
		if err != nil {
			return err
		}
		defer closeOCR()

		images, err := reader.ExtractImages(ctx)
		if err != nil {
			return err
		}
		if len(images) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No embedded images found.")
			return nil
		}
		if err := os.MkdirAll(pdfImagesOut, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		for _, img := range images {
			path := filepath.Join(pdfImagesOut, img.FileName())
			if err := os.WriteFile(path, img.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d images.\n", len(images))
		return nil
	},
}

var pdfMetaCmd = &cobra.Command{
	Use:   "meta <file>",
	Short: "显示 PDF 元数据",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, closeOCR, err := openPDF(args[0], false)
		if err != nil {
			return err
		}
		defer closeOCR()

		meta := reader.Metadata()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "Pages\t%d\n", reader.NumPages())
		for _, key := range sortedMetaKeys(meta) {
			fmt.Fprintf(w, "%s\t%s\n", key, meta[key])
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(pdfCmd)
	pdfCmd.AddCommand(pdfTextCmd, pdfPagesCmd, pdfImagesCmd, pdfMetaCmd)

	pdfCmd.PersistentFlags().StringVar(&pdfPassword, "password", "", "加密 PDF 的密码（覆盖 pdf.password）")
	pdfTextCmd.Flags().BoolVar(&pdfNoOCR, "no-ocr", false, "只做原生文本抽取")
	pdfPagesCmd.Flags().BoolVar(&pdfNoOCR, "no-ocr", false, "只做原生文本抽取")
	pdfImagesCmd.Flags().StringVar(&pdfImagesOut, "out", ".", "图片输出目录")
}

// openPDF 打开 PDF；返回的 close 函数负责释放 OCR 引擎。
func openPDF(path string, withOCR bool) (*pdfreader.Reader, func(), error) {
	var engine ocr.Extractor
	if withOCR {
		var err error
		if engine, err = newOCR(); err != nil {
			return nil, nil, err
		}
	}
	closeOCR := func() {
		if engine != nil {
			_ = engine.Close()
		}
	}

	reader, err := pdfreader.OpenFile(path, readerOptions(engine, pdfPassword)...)
	if err != nil {
		closeOCR()
		return nil, nil, err
	}
	return reader, closeOCR, nil
}

func pageError(p pdfreader.PageResult) string {
	var errs []string
	if p.Native.Err != nil {
		errs = append(errs, "native: "+p.Native.Err.Error())
	}
	if p.OCR.Err != nil {
		errs = append(errs, "ocr: "+p.OCR.Err.Error())
	}
	return strings.Join(errs, "; ")
}

func sortedMetaKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
